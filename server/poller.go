package server

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// poller 封装 epoll：注册/注销套接字并等待就绪事件。
// 采用边沿触发，事件数据区携带 64 位连接令牌（拆到 Fd/Pad 两个 32 位字段）。
type poller struct {
	epfd   int
	events []unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// add 注册套接字，监听读+写就绪，事件携带令牌
func (p *poller) add(fd int, token Token) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(uint32(token)),
		Pad:    int32(uint32(token >> 32)),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// addListener 注册监听套接字，仅关心可读（可接受连接）
func (p *poller) addListener(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(uint32(ListenerToken)),
		Pad:    int32(uint32(ListenerToken >> 32)),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// del 注销套接字
func (p *poller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait 阻塞等待就绪事件（无超时）；EINTR 由调用方分类后重试
func (p *poller) wait() ([]unix.EpollEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.events, -1)
	if err != nil {
		return nil, err
	}
	return p.events[:n], nil
}

func (p *poller) close() {
	_ = unix.Close(p.epfd)
}

// eventToken 还原事件携带的连接令牌
func eventToken(ev *unix.EpollEvent) Token {
	return Token(uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32)
}

// interrupted 判断系统调用是否被信号中断（可安全重试）
func interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}
