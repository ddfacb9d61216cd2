package server

import (
	"sync/atomic"
)

// ServerMetrics 记录运行期关键指标（用于监控与调试）
type ServerMetrics struct {
	AcceptedTotal     int64 // 接受的连接总数
	PromotedTotal     int64 // 晋升为玩家的连接数
	TeardownTotal     int64 // 拆除的连接数
	KeepAliveTimeouts int64 // 心跳超时断开数
	PacketsHandled    int64 // 处理的数据包数
	ActiveClients     int64 // 当前晋升前连接数
	ActivePlayers     int64 // 当前玩家数
}

func (m *ServerMetrics) IncAccepted() {
	atomic.AddInt64(&m.AcceptedTotal, 1)
	atomic.AddInt64(&m.ActiveClients, 1)
}

func (m *ServerMetrics) IncPromoted() {
	atomic.AddInt64(&m.PromotedTotal, 1)
	atomic.AddInt64(&m.ActiveClients, -1)
	atomic.AddInt64(&m.ActivePlayers, 1)
}

func (m *ServerMetrics) IncClientTeardown() {
	atomic.AddInt64(&m.TeardownTotal, 1)
	atomic.AddInt64(&m.ActiveClients, -1)
}

func (m *ServerMetrics) IncPlayerTeardown() {
	atomic.AddInt64(&m.TeardownTotal, 1)
	atomic.AddInt64(&m.ActivePlayers, -1)
}

func (m *ServerMetrics) IncKeepAliveTimeouts() { atomic.AddInt64(&m.KeepAliveTimeouts, 1) }
func (m *ServerMetrics) IncPackets()           { atomic.AddInt64(&m.PacketsHandled, 1) }

func (m *ServerMetrics) Accepted() int64 { return atomic.LoadInt64(&m.AcceptedTotal) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *ServerMetrics) Snapshot() map[string]any {
	return map[string]any{
		"accepted_total":     atomic.LoadInt64(&m.AcceptedTotal),
		"promoted_total":     atomic.LoadInt64(&m.PromotedTotal),
		"teardown_total":     atomic.LoadInt64(&m.TeardownTotal),
		"keepalive_timeouts": atomic.LoadInt64(&m.KeepAliveTimeouts),
		"packets_handled":    atomic.LoadInt64(&m.PacketsHandled),
		"active_clients":     atomic.LoadInt64(&m.ActiveClients),
		"active_players":     atomic.LoadInt64(&m.ActivePlayers),
	}
}
