package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// Client 晋升之前（或独立于游戏会话）的单连接状态。
// 套接字由它独占持有；closed/makePlayer/lastAlive 是跨上下文共享的原子字段：
//   - closed：数据包处理或 Keep-Alive 监视器置位，反应器读取
//   - makePlayer：数据包处理置位，反应器读取
//   - lastAlive：仅 Keep-Alive 监视器写入
//
// fd 的写路径（Send/flushPending/Kick）都在 outMu 下触碰描述符；
// 拆除时反应器同样在 outMu 下把 fd 置 -1 再关闭，保证没有协程会把
// 迟到的 write/shutdown 打到已被内核复用的 fd 号上。
// 其余字段只在反应器上下文访问，不加锁。
type Client struct {
	ID   Token
	fd   int
	addr string

	state      atomic.Int32
	closed     atomic.Bool
	closeOnce  sync.Once
	closeCause atomic.Value // string
	makePlayer atomic.Bool
	lastAlive  atomic.Int64 // UnixNano

	// 回显通道：单生产者（数据包处理）单消费者（监视器），有界防积压
	keepAliveCh chan int64
	// 反应器在拆除时触发，让监视器立即退出而不是等它自己察觉
	cancelKeepAlive context.CancelFunc

	limiter *rate.Limiter

	// 入站缓冲：仅反应器读写
	inbound []byte

	// 出站队列：先直写，EAGAIN 时排队等下一次可写就绪再冲刷
	outMu   sync.Mutex
	pending []byte

	// 登录时由协议层填入，晋升后进入 Profile
	profileName string
}

func newClient(id Token, fd int, addr string, cfg *Config) *Client {
	c := &Client{
		ID:          id,
		fd:          fd,
		addr:        addr,
		keepAliveCh: make(chan int64, cfg.KeepAliveBacklog),
	}
	if cfg.PacketsPerSecond > 0 {
		c.limiter = rate.NewLimiter(cfg.PacketsPerSecond, cfg.PacketBurst)
	}
	c.lastAlive.Store(time.Now().UnixNano())
	return c
}

// State 当前协议阶段
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Client) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// Closed 连接是否已标记关闭
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// CloseReason 首次关闭原因（未关闭时为空串）
func (c *Client) CloseReason() string {
	if v := c.closeCause.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// markClosed 本地标记关闭；只有第一次的原因会被记录
func (c *Client) markClosed(reason string) {
	c.closeOnce.Do(func() {
		c.closeCause.Store(reason)
		c.closed.Store(true)
	})
}

// Kick 主动断开：尽力送出断开原因，标记关闭，并 shutdown 套接字。
// shutdown 会在反应器处产生一次就绪事件，使拆除发生在下一轮次，
// 而不是等对端再有动作。可从任意上下文调用；拆除之后 fd 已被收回，
// 只剩标记动作。
func (c *Client) Kick(reason string) {
	c.Send(EncodeFrame(CmdDisconnect, []byte(reason)))
	c.markClosed(reason)
	c.outMu.Lock()
	if c.fd >= 0 {
		_ = unix.Shutdown(c.fd, unix.SHUT_RD)
	}
	c.outMu.Unlock()
}

// detachFD 拆除时收回套接字所有权并返回描述符；之后 Send/Kick 不再
// 触碰该 fd 号（内核随时可能把它分配给新连接）
func (c *Client) detachFD() int {
	c.outMu.Lock()
	fd := c.fd
	c.fd = -1
	c.outMu.Unlock()
	return fd
}

// SubmitKeepAlive 数据包处理路径投递回显的挑战 id；通道满则丢弃
func (c *Client) SubmitKeepAlive(id int64) {
	select {
	case c.keepAliveCh <- id:
	default:
		// 监视器消费不过来时丢弃，避免无界增长
	}
}

// Send 出站一帧：队列为空先尝试直写，余量排队等待可写就绪
func (c *Client) Send(frame []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.closed.Load() || c.fd < 0 {
		return
	}
	if len(c.pending) == 0 {
		n, err := unix.Write(c.fd, frame)
		if err == nil && n == len(frame) {
			return
		}
		if err != nil && err != unix.EAGAIN && err != unix.EINTR {
			c.markClosed("write failed: " + err.Error())
			return
		}
		if n < 0 {
			n = 0
		}
		frame = frame[n:]
	}
	c.pending = append(c.pending, frame...)
}

// flushPending 可写就绪时冲刷出站队列
func (c *Client) flushPending() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.fd < 0 {
		return
	}
	for len(c.pending) > 0 {
		n, err := unix.Write(c.fd, c.pending)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return
			}
			c.markClosed("write failed: " + err.Error())
			return
		}
		c.pending = c.pending[n:]
	}
	c.pending = nil
}

// pollIO 反应器派发就绪事件：可写先冲刷，可读则读到 EAGAIN 为止。
// 对端关闭（EOF）或读错误都归类为本地 closed，不上抛。
func (c *Client) pollIO(readable, writable bool) {
	if writable {
		c.flushPending()
	}
	if !readable {
		return
	}
	var buf [4096]byte
	for {
		n, err := unix.Read(c.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			c.markClosed("read failed: " + err.Error())
			return
		}
		if n == 0 {
			c.markClosed("connection closed by peer")
			return
		}
		c.inbound = append(c.inbound, buf[:n]...)
	}
}
