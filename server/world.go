package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// TicksPerSecond 世界推进频率（20 TPS）
	TicksPerSecond = 20
)

var tickInterval = time.Duration(1000/TicksPerSecond) * time.Millisecond // 50ms

// World 世界状态：玩家成员关系与世界时间。
// 反应器负责增删成员；控制台、RCON 与管理接口并发读取，因此加读写锁。
type World struct {
	mu      sync.RWMutex
	players map[Token]*Player

	age atomic.Int64 // 世界年龄（tick 数）

	tickerStarted bool
}

func NewWorld() *World {
	return &World{players: make(map[Token]*Player)}
}

// StartTicker 启动世界 Tick 循环（单协程推进）
func (w *World) StartTicker() {
	if w.tickerStarted {
		return
	}
	w.tickerStarted = true
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for range ticker.C {
			w.age.Add(1)
		}
	}()
}

// Age 当前世界年龄
func (w *World) Age() int64 {
	return w.age.Load()
}

// SpawnPlayer 玩家进入世界：登记成员、回执登录确认并广播加入消息
func (w *World) SpawnPlayer(cfg *Config, p *Player) {
	w.mu.Lock()
	w.players[p.Client.ID] = p
	p.world = w
	count := len(w.players)
	w.mu.Unlock()

	ack := append(p.Profile.UUID[:], []byte(p.Profile.Name)...)
	p.Client.Send(EncodeFrame(CmdLogin, ack))

	Log.Infof("%s joined the game (%d/%d)", p.Profile.Name, count, cfg.MaxPlayers)
	w.BroadcastChat("", p.Profile.Name+" joined the game")
}

// RemovePlayer 玩家离开世界
func (w *World) RemovePlayer(p *Player) {
	w.mu.Lock()
	delete(w.players, p.Client.ID)
	w.mu.Unlock()
	w.BroadcastChat("", p.Profile.Name+" left the game")
}

// BroadcastChat 向所有在线玩家广播文本消息；from 为空表示系统消息
func (w *World) BroadcastChat(from, msg string) {
	text := msg
	if from != "" {
		text = fmt.Sprintf("<%s> %s", from, msg)
	}
	frame := EncodeFrame(CmdChat, []byte(text))
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.players {
		p.Client.Send(frame)
	}
}

// FindByName 按玩家名查找
func (w *World) FindByName(name string) (*Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.players {
		if p.Profile.Name == name {
			return p, true
		}
	}
	return nil, false
}

// PlayerNames 在线玩家名列表（list 命令与管理接口用）
func (w *World) PlayerNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.players))
	for _, p := range w.players {
		names = append(names, p.Profile.Name)
	}
	return names
}

// Count 在线玩家数
func (w *World) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.players)
}
