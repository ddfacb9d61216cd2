package server

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func keepAliveConfig(interval, timeout time.Duration) *Config {
	cfg := DefaultConfig()
	cfg.SetKeepAliveInterval(interval)
	cfg.SetKeepAliveTimeout(timeout)
	return cfg
}

// echoPeer 从对端读出探测帧并把挑战 id 投回回显通道，
// 模拟协议层（数据包处理路径）作为生产者的角色
func echoPeer(c *Client, peer int) {
	var buf [4096]byte
	var acc []byte
	for {
		n, err := unix.Read(peer, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			return
		}
		acc = append(acc, buf[:n]...)
		for {
			cmd, payload, rest, ok, err := splitFrame(acc)
			if err != nil || !ok {
				break
			}
			acc = rest
			if cmd != CmdKeepAlive {
				continue
			}
			if id, err := DecodeKeepAlive(payload); err == nil {
				c.SubmitKeepAlive(id)
			}
		}
	}
}

// TestKeepAliveTimeoutFires Play 阶段静默的连接在阈值达到后（而不是之前）被关闭
func TestKeepAliveTimeoutFires(t *testing.T) {
	t.Parallel()

	cfg := keepAliveConfig(20*time.Millisecond, 300*time.Millisecond)
	m := &ServerMetrics{}
	c, _ := newTestClient(t, cfg, 1)
	c.setState(StatePlay)

	start := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		runKeepAlive(ctx, c, cfg, m)
		close(done)
	}()

	// 阈值之前不得关闭
	time.Sleep(150 * time.Millisecond)
	if c.Closed() {
		t.Fatalf("closed after %s, before the %s deadline", time.Since(start), cfg.KeepAliveTimeout())
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not terminate after the deadline")
	}
	if !c.Closed() {
		t.Fatal("connection not closed after deadline")
	}
	if elapsed := time.Since(start); elapsed < cfg.KeepAliveTimeout() {
		t.Fatalf("closed after %s, deadline is %s", elapsed, cfg.KeepAliveTimeout())
	}
	if got := c.CloseReason(); got != "no keep-alive response" {
		t.Fatalf("close reason = %q", got)
	}
}

// TestKeepAliveEchoPreventsTimeout 始终按时回显的连接长期运行不会被误杀
func TestKeepAliveEchoPreventsTimeout(t *testing.T) {
	t.Parallel()

	// 1ms 周期持续约 1000 个滴答
	cfg := keepAliveConfig(time.Millisecond, 100*time.Millisecond)
	m := &ServerMetrics{}
	c, peer := newTestClient(t, cfg, 1)
	c.setState(StatePlay)

	go echoPeer(c, peer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runKeepAlive(ctx, c, cfg, m)

	time.Sleep(1200 * time.Millisecond)
	if c.Closed() {
		t.Fatalf("well-behaved connection closed: %s", c.CloseReason())
	}
}

// TestKeepAliveNonLiveExempt 未进入会话的连接无论静默多久都不会心跳超时
func TestKeepAliveNonLiveExempt(t *testing.T) {
	t.Parallel()

	cfg := keepAliveConfig(5*time.Millisecond, 20*time.Millisecond)
	m := &ServerMetrics{}
	c, _ := newTestClient(t, cfg, 1)
	// 保持握手阶段

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runKeepAlive(ctx, c, cfg, m)

	time.Sleep(300 * time.Millisecond)
	if c.Closed() {
		t.Fatalf("non-live connection closed: %s", c.CloseReason())
	}
}

// TestKeepAliveIntervalHotUpdate 热更新探测周期对运行中的监视器
// 自下一个滴答起生效，而不是只影响之后接受的连接
func TestKeepAliveIntervalHotUpdate(t *testing.T) {
	t.Parallel()

	cfg := keepAliveConfig(300*time.Millisecond, time.Hour)
	m := &ServerMetrics{}
	c, peer := newTestClient(t, cfg, 1)
	c.setState(StatePlay)

	// 记录每个探测帧到达对端的时刻并回显
	probes := make(chan time.Time, 16)
	go func() {
		var buf [4096]byte
		var acc []byte
		for {
			n, err := unix.Read(peer, buf[:])
			if err == unix.EINTR {
				continue
			}
			if err != nil || n == 0 {
				return
			}
			acc = append(acc, buf[:n]...)
			for {
				cmd, payload, rest, ok, err := splitFrame(acc)
				if err != nil || !ok {
					break
				}
				acc = rest
				if cmd != CmdKeepAlive {
					continue
				}
				if id, err := DecodeKeepAlive(payload); err == nil {
					probes <- time.Now()
					c.SubmitKeepAlive(id)
				}
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runKeepAlive(ctx, c, cfg, m)

	cfg.SetKeepAliveInterval(20 * time.Millisecond)

	waitProbe := func() time.Time {
		select {
		case ts := <-probes:
			return ts
		case <-time.After(2 * time.Second):
			t.Fatal("no probe observed")
			return time.Time{}
		}
	}
	// 第一个探测可能仍按旧周期触发；其后的间距必须已是新周期
	first := waitProbe()
	second := waitProbe()
	if gap := second.Sub(first); gap > 150*time.Millisecond {
		t.Fatalf("second probe %s after the first, updated interval not applied", gap)
	}
	if c.Closed() {
		t.Fatalf("connection unexpectedly closed: %s", c.CloseReason())
	}
}

// TestKeepAliveCancellation 反应器拆除时取消上下文，监视器立即退出
func TestKeepAliveCancellation(t *testing.T) {
	t.Parallel()

	cfg := keepAliveConfig(10*time.Millisecond, time.Hour)
	m := &ServerMetrics{}
	c, _ := newTestClient(t, cfg, 1)
	c.setState(StatePlay)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runKeepAlive(ctx, c, cfg, m)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
	if c.Closed() {
		t.Fatal("cancellation must not mark the connection closed")
	}
}

// TestKeepAliveMismatchedEchoIgnored 回显 id 不匹配不刷新时间戳，最终超时
func TestKeepAliveMismatchedEchoIgnored(t *testing.T) {
	t.Parallel()

	cfg := keepAliveConfig(10*time.Millisecond, 100*time.Millisecond)
	m := &ServerMetrics{}
	c, _ := newTestClient(t, cfg, 1)
	c.setState(StatePlay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		runKeepAlive(ctx, c, cfg, m)
		close(done)
	}()

	// 持续投喂错误的 id
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				c.SubmitKeepAlive(-1)
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not time out despite mismatched echoes")
	}
	if got := c.CloseReason(); got != "no keep-alive response" {
		t.Fatalf("close reason = %q", got)
	}
	if m.Snapshot()["keepalive_timeouts"].(int64) != 1 {
		t.Fatal("timeout metric not incremented")
	}
}
