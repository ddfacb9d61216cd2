package server

import (
	"bytes"
	"testing"
)

func TestSplitFrame(t *testing.T) {
	t.Parallel()

	frame := EncodeFrame(CmdChat, []byte("hi"))

	// 不足一帧：缓冲保持原样
	for cut := 0; cut < len(frame); cut++ {
		_, _, rest, ok, err := splitFrame(frame[:cut])
		if err != nil {
			t.Fatalf("cut=%d: unexpected error %v", cut, err)
		}
		if ok {
			t.Fatalf("cut=%d: got a frame from incomplete data", cut)
		}
		if !bytes.Equal(rest, frame[:cut]) {
			t.Fatalf("cut=%d: buffer not preserved", cut)
		}
	}

	// 两帧连发：逐帧切出
	buf := append(append([]byte{}, frame...), EncodeFrame(CmdKeepAlive, make([]byte, 8))...)
	cmd, payload, rest, ok, err := splitFrame(buf)
	if err != nil || !ok || cmd != CmdChat || string(payload) != "hi" {
		t.Fatalf("first frame: cmd=%d payload=%q ok=%v err=%v", cmd, payload, ok, err)
	}
	cmd, _, rest, ok, err = splitFrame(rest)
	if err != nil || !ok || cmd != CmdKeepAlive {
		t.Fatalf("second frame: cmd=%d ok=%v err=%v", cmd, ok, err)
	}
	if len(rest) != 0 {
		t.Fatalf("trailing %d bytes", len(rest))
	}
}

func TestSplitFrameRejectsBadSize(t *testing.T) {
	t.Parallel()

	// 长度字段小于命令字长度
	if _, _, _, _, err := splitFrame([]byte{0, 0, 0, 1}); err == nil {
		t.Fatal("undersized frame accepted")
	}
	// 长度字段超过上限
	if _, _, _, _, err := splitFrame([]byte{0xFF, 0xFF, 0xFF, 0xFF}); err == nil {
		t.Fatal("oversized frame accepted")
	}
}

func TestKeepAliveCodec(t *testing.T) {
	t.Parallel()

	const id int64 = -7218361283
	cmd, payload, _, ok, err := splitFrame(EncodeKeepAlive(id))
	if err != nil || !ok || cmd != CmdKeepAlive {
		t.Fatalf("cmd=%d ok=%v err=%v", cmd, ok, err)
	}
	got, err := DecodeKeepAlive(payload)
	if err != nil {
		t.Fatalf("DecodeKeepAlive: %v", err)
	}
	if got != id {
		t.Fatalf("id = %d, want %d", got, id)
	}
	if _, err := DecodeKeepAlive([]byte{1, 2, 3}); err == nil {
		t.Fatal("short keep-alive payload accepted")
	}
}

// TestProcessPacketsLogin 登录包达成晋升条件：置 makePlayer，记录玩家名
func TestProcessPacketsLogin(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	c, _ := newTestClient(t, srv.Config(), 1)

	c.inbound = EncodeFrame(CmdLogin, []byte("steve"))
	c.processPackets(srv)

	if c.Closed() {
		t.Fatalf("client closed: %s", c.CloseReason())
	}
	if !c.makePlayer.Load() {
		t.Fatal("makePlayer not set after login")
	}
	if c.profileName != "steve" {
		t.Fatalf("profile name = %q", c.profileName)
	}
	if c.State() != StateLogin {
		t.Fatalf("state = %s, want login", c.State())
	}
}

// TestProcessPacketsDuplicateLogin 重复登录被断开
func TestProcessPacketsDuplicateLogin(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	c, _ := newTestClient(t, srv.Config(), 1)

	login := EncodeFrame(CmdLogin, []byte("steve"))
	c.inbound = append(append([]byte{}, login...), login...)
	c.processPackets(srv)

	if !c.Closed() {
		t.Fatal("duplicate login not rejected")
	}
}

// TestProcessPacketsKeepAliveEcho 回显的挑战 id 进入回显通道
func TestProcessPacketsKeepAliveEcho(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	c, _ := newTestClient(t, srv.Config(), 1)

	c.inbound = EncodeKeepAlive(12345)
	c.processPackets(srv)

	select {
	case id := <-c.keepAliveCh:
		if id != 12345 {
			t.Fatalf("echoed id = %d", id)
		}
	default:
		t.Fatal("echo not delivered to the reply channel")
	}
}

// TestProcessPacketsChatRequiresPlay 未进入会话不得聊天
func TestProcessPacketsChatRequiresPlay(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	c, _ := newTestClient(t, srv.Config(), 1)

	c.inbound = EncodeFrame(CmdChat, []byte("hi"))
	c.processPackets(srv)

	if !c.Closed() {
		t.Fatal("chat before login accepted")
	}
}

// TestProcessPacketsRateLimit 超过令牌桶限额的连接被断开
func TestProcessPacketsRateLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PacketsPerSecond = 1
	cfg.PacketBurst = 2
	srv := NewServer(cfg)
	c, _ := newTestClient(t, cfg, 1)

	var buf []byte
	for i := 0; i < 10; i++ {
		buf = append(buf, EncodeKeepAlive(int64(i))...)
	}
	c.inbound = buf
	c.processPackets(srv)

	if !c.Closed() {
		t.Fatal("rate limit not enforced")
	}
}

// TestProcessPacketsMalformedFrame 协议错误只关闭本连接
func TestProcessPacketsMalformedFrame(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	c, _ := newTestClient(t, srv.Config(), 1)

	c.inbound = []byte{0xFF, 0xFF, 0xFF, 0xFF}
	c.processPackets(srv)

	if !c.Closed() {
		t.Fatal("malformed frame did not close the connection")
	}
}
