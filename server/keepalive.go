package server

import (
	"context"
	"math/rand"
	"time"
)

// runKeepAlive 单连接心跳监视器：固定周期唤醒，与反应器及该连接的
// 数据包处理路径并发运行。
//   - 非 Play 阶段：刷新 lastAlive（活性检查挂起，避免误杀未进入会话的连接）
//   - Play 阶段：静默达到阈值则以 "no keep-alive response" 关闭并退出；
//     否则发送随机 64 位挑战 id，并在下一个滴答边界之前等待一次回显，
//     回显匹配才刷新 lastAlive
//
// ctx 由反应器在拆除连接时取消，保证任务不泄漏。
// 本监视器是超时关闭的唯一写入方，也是 lastAlive 的唯一写入方。
func runKeepAlive(ctx context.Context, c *Client, cfg *Config, m *ServerMetrics) {
	interval := cfg.KeepAliveInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// 周期被 /admin/config 热更新时自本滴答起采用，与阈值的行为一致
		if d := cfg.KeepAliveInterval(); d != interval {
			interval = d
			ticker.Reset(interval)
		}

		now := time.Now()
		if c.State() != StatePlay {
			c.lastAlive.Store(now.UnixNano())
			continue
		}

		if now.Sub(time.Unix(0, c.lastAlive.Load())) >= cfg.KeepAliveTimeout() {
			Log.Infof("connection #%d timed out", c.ID)
			m.IncKeepAliveTimeouts()
			c.Kick("no keep-alive response")
			return
		}

		challenge := int64(rand.Uint64())
		c.Send(EncodeKeepAlive(challenge))

		// 等待回显不超过一个周期，不重置滴答本身；
		// 没等到或 id 不匹配则不刷新，下一个滴答的阈值检查兜底
		wait := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case echo := <-c.keepAliveCh:
			if echo == challenge {
				c.lastAlive.Store(time.Now().UnixNano())
			}
		case <-wait.C:
		}
		wait.Stop()
	}
}
