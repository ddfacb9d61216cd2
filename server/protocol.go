package server

import (
	"encoding/binary"
	"fmt"
)

// ConnectionState 协议阶段。核心只区分 Play（会话已建立）与其余阶段
type ConnectionState int32

const (
	StateHandshake ConnectionState = iota
	StateStatus
	StateLogin
	StatePlay
)

func (s ConnectionState) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	case StatePlay:
		return "play"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// 线上帧格式：uint32 长度（大端，含命令字）+ uint32 命令字 + 负载
const (
	frameHeaderSize = 4
	cmdSize         = 4
	maxFrameSize    = 1 << 20 // 单帧负载上限 1MB
)

// 命令字
const (
	CmdLogin      uint32 = 0x00 // c→s 负载为玩家名；s→c 登录确认（UUID+名字）
	CmdKeepAlive  uint32 = 0x01 // 双向，负载为 8 字节挑战 id
	CmdChat       uint32 = 0x02 // 双向，Play 阶段文本消息
	CmdDisconnect uint32 = 0x03 // s→c 断开原因
)

// EncodeFrame 编码一帧：长度前缀 + 命令字 + 负载
func EncodeFrame(cmd uint32, payload []byte) []byte {
	out := make([]byte, frameHeaderSize+cmdSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(cmdSize+len(payload)))
	binary.BigEndian.PutUint32(out[frameHeaderSize:], cmd)
	copy(out[frameHeaderSize+cmdSize:], payload)
	return out
}

// EncodeKeepAlive 编码心跳探测/回显帧
func EncodeKeepAlive(id int64) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(id))
	return EncodeFrame(CmdKeepAlive, payload)
}

// DecodeKeepAlive 解析心跳帧负载中的挑战 id
func DecodeKeepAlive(payload []byte) (int64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("keep-alive payload size %d, want 8", len(payload))
	}
	return int64(binary.BigEndian.Uint64(payload)), nil
}

// splitFrame 从流缓冲中切出一帧。返回命令字、负载、剩余字节；
// 数据不足整帧时 ok 为 false，缓冲保持原样等待更多数据。
func splitFrame(buf []byte) (cmd uint32, payload, rest []byte, ok bool, err error) {
	if len(buf) < frameHeaderSize {
		return 0, nil, buf, false, nil
	}
	size := binary.BigEndian.Uint32(buf)
	if size < cmdSize || size > cmdSize+maxFrameSize {
		return 0, nil, buf, false, fmt.Errorf("invalid frame size %d", size)
	}
	if len(buf) < frameHeaderSize+int(size) {
		return 0, nil, buf, false, nil
	}
	cmd = binary.BigEndian.Uint32(buf[frameHeaderSize:])
	payload = buf[frameHeaderSize+cmdSize : frameHeaderSize+int(size)]
	rest = buf[frameHeaderSize+int(size):]
	return cmd, payload, rest, true, nil
}

// processPackets 数据包处理：消费入站缓冲并按命令字分发。
// 由反应器在连接就绪的同一轮次内调用；通过共享原子标志
// （closed/makePlayer/回显通道）与反应器、监视器交换状态。
func (c *Client) processPackets(s *Server) {
	for {
		cmd, payload, rest, ok, err := splitFrame(c.inbound)
		if err != nil {
			// 协议错误只影响本连接，绝不上抛为进程错误
			c.Kick(fmt.Sprintf("protocol error: %v", err))
			return
		}
		if !ok {
			return
		}
		c.inbound = rest
		if c.limiter != nil && !c.limiter.Allow() {
			c.Kick("packet rate limit exceeded")
			return
		}
		s.metrics.IncPackets()

		switch cmd {
		case CmdLogin:
			// 达成晋升条件：记录玩家名并请求反应器在本轮次做晋升
			if c.State() == StatePlay || c.makePlayer.Load() {
				c.Kick("duplicate login")
				return
			}
			name := string(payload)
			if name == "" || len(name) > 16 {
				c.Kick("invalid player name")
				return
			}
			c.profileName = name
			c.setState(StateLogin)
			c.makePlayer.Store(true)
		case CmdKeepAlive:
			id, err := DecodeKeepAlive(payload)
			if err != nil {
				c.Kick(err.Error())
				return
			}
			c.SubmitKeepAlive(id)
		case CmdChat:
			if c.State() != StatePlay {
				c.Kick("chat before login")
				return
			}
			s.world.BroadcastChat(c.profileName, string(payload))
		default:
			// 未知命令字不致命，留给协议层扩展
			Log.Debugf("connection #%d sent unknown command 0x%02x", c.ID, cmd)
		}
	}
}
