package server

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RCONConfig 远程控制台（RCON）配置
type RCONConfig struct {
	Enabled  bool
	Addr     string
	Password string
}

// AdminConfig 管理与监控 HTTP 服务配置
type AdminConfig struct {
	Enabled bool
	Addr    string
}

// Config 进程级配置：启动时在 main 中构造一次，按引用传入反应器、
// Keep-Alive 监视器与插件加载器等组件，不使用全局单例。
// 心跳两个参数可被 /admin/config 热更新，因此用原子字段保存。
type Config struct {
	Addr       string // 监听地址，如 ":25565"
	ScrubIPs   bool   // 日志中是否脱敏对端 IP
	PluginDir  string // 插件目录（不存在则递归创建）
	UseConsole bool   // 是否启动交互式控制台
	MaxPlayers int

	RCON  RCONConfig
	Admin AdminConfig

	// 每客户端入站数据包限流（令牌桶），0 表示不限流
	PacketsPerSecond rate.Limit
	PacketBurst      int

	// Keep-Alive 回显通道容量，防止回显无人消费时无限增长
	KeepAliveBacklog int

	keepAliveInterval atomic.Int64 // 纳秒
	keepAliveTimeout  atomic.Int64 // 纳秒
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{
		Addr:             ":25565",
		PluginDir:        "./plugins",
		MaxPlayers:       20,
		PacketsPerSecond: 200,
		PacketBurst:      400,
		KeepAliveBacklog: 1024,
		RCON:             RCONConfig{Addr: ":25575"},
		Admin:            AdminConfig{Addr: ":8080"},
	}
	cfg.SetKeepAliveInterval(time.Second)
	cfg.SetKeepAliveTimeout(15 * time.Second)
	return cfg
}

// KeepAliveInterval 心跳探测周期
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.keepAliveInterval.Load())
}

// SetKeepAliveInterval 更新心跳探测周期（各监视器自下一个滴答起采用）
func (c *Config) SetKeepAliveInterval(d time.Duration) {
	c.keepAliveInterval.Store(int64(d))
}

// KeepAliveTimeout 心跳超时阈值
func (c *Config) KeepAliveTimeout() time.Duration {
	return time.Duration(c.keepAliveTimeout.Load())
}

// SetKeepAliveTimeout 更新心跳超时阈值（立即对所有监视器生效）
func (c *Config) SetKeepAliveTimeout(d time.Duration) {
	c.keepAliveTimeout.Store(int64(d))
}
