package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/unix"
)

// Reactor 就绪驱动的事件循环：绑定监听套接字、轮询 OS 就绪事件、
// 排空 accept、按令牌派发、执行拆除与晋升。
// 唯一的反应器执行上下文独占注册表；除轮询外不做任何阻塞调用。
type Reactor struct {
	cfg *Config
	srv *Server

	poller   *poller
	listenFD int
	addr     *net.TCPAddr

	alloc tokenAllocator
	reg   *registry
}

// NewReactor 创建反应器并绑定监听地址；绑定失败是致命错误
func NewReactor(cfg *Config, srv *Server) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	fd, addr, err := bindListener(cfg.Addr)
	if err != nil {
		p.close()
		return nil, err
	}
	if err := p.addListener(fd); err != nil {
		_ = unix.Close(fd)
		p.close()
		return nil, fmt.Errorf("register listener: %w", err)
	}
	return &Reactor{
		cfg:      cfg,
		srv:      srv,
		poller:   p,
		listenFD: fd,
		addr:     addr,
		alloc:    newTokenAllocator(),
		reg:      newRegistry(),
	}, nil
}

// Addr 实际绑定的地址（监听 ":0" 时可取回真实端口）
func (r *Reactor) Addr() *net.TCPAddr {
	return r.addr
}

// Close 关闭监听套接字与轮询器；正在 Run 的循环随后以致命错误返回。
// 正常运行不调用它（进程用信号直接退出），供测试与嵌入场景使用。
func (r *Reactor) Close() {
	_ = unix.Close(r.listenFD)
	r.poller.close()
}

// Run 事件循环：运行到发生致命 OS 错误为止。
// 进程收到信号时直接退出，不做优雅排空（已知设计边界）。
func (r *Reactor) Run() error {
	for {
		events, err := r.poller.wait()
		if err != nil {
			// 被信号中断属于瞬时错误，静默重试；其余错误致命
			if interrupted(err) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		for i := range events {
			ev := &events[i]
			token := eventToken(ev)
			if token == ListenerToken {
				if err := r.acceptPending(); err != nil {
					return err
				}
				continue
			}
			if err := r.dispatch(token, ev.Events); err != nil {
				return err
			}
		}
	}
}

// acceptPending 排空监听队列：接受到 EAGAIN 为止，保证一次就绪事件
// 不会遗留任何已排队的连接
func (r *Reactor) acceptPending() error {
	for {
		nfd, sa, err := unix.Accept4(r.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				// 监听队列已空，回到轮询
				return nil
			}
			if interrupted(err) {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		// 尽力关闭 Nagle；失败只记日志，不致命
		if err := unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			Log.Warnf("failed to set TCP_NODELAY: %v", err)
		}

		addr := sockaddrString(sa)
		Log.Infof("Accepted connection from: %s", scrubAddress(r.cfg, addr))

		token := r.alloc.Next()
		if err := r.poller.add(nfd, token); err != nil {
			_ = unix.Close(nfd)
			return fmt.Errorf("register connection: %w", err)
		}

		c := newClient(token, nfd, addr, r.cfg)
		ctx, cancel := context.WithCancel(context.Background())
		c.cancelKeepAlive = cancel
		go runKeepAlive(ctx, c, r.cfg, r.srv.metrics)

		r.reg.addClient(c)
		r.srv.metrics.IncAccepted()
	}
}

// dispatch 按令牌派发一次就绪事件
func (r *Reactor) dispatch(token Token, events uint32) error {
	readable := events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0
	writable := events&unix.EPOLLOUT != 0

	// 先查玩家
	if p, ok := r.reg.player(token); ok {
		p.Client.pollIO(readable, writable)
		if !p.Client.Closed() {
			p.processPackets(r.srv)
		}
		// 关闭判定放在处理之后，本轮次内的状态变化即刻生效
		if p.Client.Closed() {
			r.reg.removePlayer(token)
			p.remove()
			r.srv.metrics.IncPlayerTeardown()
			return r.teardown(p.Client)
		}
		return nil
	}

	c, ok := r.reg.client(token)
	if !ok {
		return nil
	}
	c.pollIO(readable, writable)
	if !c.Closed() {
		c.processPackets(r.srv)
	}

	closed := c.Closed()
	makePlayer := c.makePlayer.Load()
	switch {
	case closed:
		// 拆除优先于晋升：两个标志同轮次同时为真时放弃晋升
		r.reg.removeClient(token)
		Log.Debugf("connection #%d closed: %s", token, c.CloseReason())
		r.srv.metrics.IncClientTeardown()
		return r.teardown(c)
	case makePlayer:
		// 晋升对反应器而言是原子的一步：移出 clients、构造 Player、
		// 插入 players，令牌不会在两个映射中都缺席或都出现
		r.reg.removeClient(token)
		p, world, err := r.srv.AddPlayer(c)
		if err != nil {
			Log.Warnf("promotion failed for connection #%d: %v", token, err)
			c.Kick(err.Error())
			r.srv.metrics.IncClientTeardown()
			return r.teardown(c)
		}
		r.reg.addPlayer(p)
		world.SpawnPlayer(r.cfg, p)
		r.srv.metrics.IncPromoted()
	}
	return nil
}

// teardown 恰好一次的连接拆除：取消监视器、收回 fd、注销套接字并关闭。
// 先 detachFD 再 close，迟到的 Kick/Send 只会看到 -1，
// 不会波及内核复用同一 fd 号的新连接。
// 调用前令牌必须已从注册表移除，保证不会二次进入。
func (r *Reactor) teardown(c *Client) error {
	if c.cancelKeepAlive != nil {
		c.cancelKeepAlive()
	}
	fd := c.detachFD()
	if err := r.poller.del(fd); err != nil {
		return fmt.Errorf("deregister connection: %w", err)
	}
	_ = unix.Close(fd)
	return nil
}

// bindListener 创建非阻塞监听套接字
func bindListener(addr string) (int, *net.TCPAddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, fmt.Errorf("resolve %q: %w", addr, err)
	}

	domain := unix.AF_INET
	if tcpAddr.IP.To4() == nil && tcpAddr.IP != nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	var sa unix.Sockaddr
	if domain == unix.AF_INET {
		sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 := tcpAddr.IP.To4(); ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		sa = sa6
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	// 取回实际地址（端口 0 由内核分配）
	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("getsockname: %w", err)
	}
	return fd, tcpAddrOf(bound), nil
}

func tcpAddrOf(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	if a := tcpAddrOf(sa); a != nil {
		return a.String()
	}
	return "unknown"
}

// scrubAddress 按配置脱敏对端地址，只保留分隔符
func scrubAddress(cfg *Config, ip string) string {
	if !cfg.ScrubIPs {
		return ip
	}
	var b strings.Builder
	for _, ch := range ip {
		if ch == '.' || ch == ':' {
			b.WriteRune(ch)
		} else {
			b.WriteRune('x')
		}
	}
	return b.String()
}
