package server

import (
	"strings"
	"testing"
)

func TestDispatchUnknownCommand(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	reply := srv.Dispatcher().Dispatch("frobnicate now")
	if !strings.Contains(reply, "Unknown command") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestDispatchEmptyLine(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	if reply := srv.Dispatcher().Dispatch("   "); reply != "" {
		t.Fatalf("reply = %q, want empty", reply)
	}
}

func TestDispatchHelpListsCommands(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	reply := srv.Dispatcher().Dispatch("help")
	for _, name := range []string{"list", "say", "kick", "plugins", "uptime"} {
		if !strings.Contains(reply, name) {
			t.Errorf("help output missing %q:\n%s", name, reply)
		}
	}
}

func TestDispatchListEmptyWorld(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	reply := srv.Dispatcher().Dispatch("list")
	if !strings.Contains(reply, "There are 0/20 players online") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestDispatchKickOffline(t *testing.T) {
	t.Parallel()

	srv := NewServer(DefaultConfig())
	reply := srv.Dispatcher().Dispatch("kick nobody testing")
	if !strings.Contains(reply, "not online") {
		t.Fatalf("reply = %q", reply)
	}
}

// TestDispatchKickOnline 踢出在线玩家会置位其 closed 标志
func TestDispatchKickOnline(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	srv := NewServer(cfg)
	c, _ := newTestClient(t, cfg, 5)
	c.profileName = "steve"
	p, world, err := srv.AddPlayer(c)
	if err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	world.SpawnPlayer(cfg, p)

	reply := srv.Dispatcher().Dispatch("kick steve bye")
	if !strings.Contains(reply, "Kicked steve") {
		t.Fatalf("reply = %q", reply)
	}
	if !c.Closed() {
		t.Fatal("kicked player not marked closed")
	}
	if got := c.CloseReason(); got != "bye" {
		t.Fatalf("close reason = %q", got)
	}
}
