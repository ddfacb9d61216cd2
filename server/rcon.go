package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/time/rate"
)

// Source RCON 包类型
const (
	rconResponseValue int32 = 0
	rconExecCommand   int32 = 2
	rconAuthResponse  int32 = 2
	rconAuth          int32 = 3
)

const rconMaxBody = 4096

// RCONServer 远程控制台：独立于反应器的并发任务，按 Source RCON 协议
// 鉴权后把命令转交分发器。鉴权尝试全局限流，防口令爆破。
type RCONServer struct {
	cfg     *Config
	srv     *Server
	ln      net.Listener
	limiter *rate.Limiter
}

// StartRCON 绑定 RCON 地址并开始接受连接
func StartRCON(cfg *Config, srv *Server) (*RCONServer, error) {
	ln, err := net.Listen("tcp", cfg.RCON.Addr)
	if err != nil {
		return nil, fmt.Errorf("rcon listen %s: %w", cfg.RCON.Addr, err)
	}
	r := &RCONServer{
		cfg: cfg,
		srv: srv,
		ln:  ln,
		// 每秒 1 次鉴权尝试，允许突发 3 次
		limiter: rate.NewLimiter(1, 3),
	}
	go r.acceptLoop()
	Log.Infof("RCON listening on %s", ln.Addr())
	return r, nil
}

// Addr 实际监听地址
func (r *RCONServer) Addr() net.Addr {
	return r.ln.Addr()
}

// Close 停止接受新的 RCON 连接
func (r *RCONServer) Close() {
	_ = r.ln.Close()
}

func (r *RCONServer) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.handleConn(conn)
	}
}

func (r *RCONServer) handleConn(conn net.Conn) {
	defer conn.Close()

	authed := false
	for {
		id, typ, body, err := readRCONPacket(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				Log.Debugf("rcon connection error: %v", err)
			}
			return
		}
		switch typ {
		case rconAuth:
			if !r.limiter.Allow() || string(body) != r.cfg.RCON.Password {
				// 口令错误（或限流）：按协议回 id=-1 并断开
				_ = writeRCONPacket(conn, -1, rconAuthResponse, nil)
				return
			}
			authed = true
			if err := writeRCONPacket(conn, id, rconAuthResponse, nil); err != nil {
				return
			}
		case rconExecCommand:
			if !authed {
				return
			}
			reply := r.srv.Dispatcher().Dispatch(string(body))
			if err := writeRCONPacket(conn, id, rconResponseValue, []byte(reply)); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readRCONPacket 读取一个 RCON 包：int32 长度（小端）+ id + 类型 + 正文 + 两个 NUL
func readRCONPacket(r io.Reader) (id, typ int32, body []byte, err error) {
	var sizeBuf [4]byte
	if _, err = io.ReadFull(r, sizeBuf[:]); err != nil {
		return 0, 0, nil, err
	}
	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < 10 || size > rconMaxBody+10 {
		return 0, 0, nil, fmt.Errorf("invalid rcon packet size %d", size)
	}
	payload := make([]byte, size)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, err
	}
	id = int32(binary.LittleEndian.Uint32(payload))
	typ = int32(binary.LittleEndian.Uint32(payload[4:]))
	body = payload[8 : size-2]
	return id, typ, body, nil
}

func writeRCONPacket(w io.Writer, id, typ int32, body []byte) error {
	size := 4 + 4 + len(body) + 2
	out := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(out, uint32(size))
	binary.LittleEndian.PutUint32(out[4:], uint32(id))
	binary.LittleEndian.PutUint32(out[8:], uint32(typ))
	copy(out[12:], body)
	// 结尾两个 NUL 由 make 置零
	_, err := w.Write(out)
	return err
}
