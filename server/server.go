package server

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Server 持有世界、命令分发器与运行指标；反应器通过它完成玩家构造。
// 控制台与 RCON 等并发任务也只经由 Server 访问核心状态。
type Server struct {
	cfg        *Config
	world      *World
	dispatcher *CommandDispatcher
	metrics    *ServerMetrics
	startedAt  time.Time

	nextEntityID atomic.Int32
}

func NewServer(cfg *Config) *Server {
	s := &Server{
		cfg:       cfg,
		world:     NewWorld(),
		metrics:   &ServerMetrics{},
		startedAt: time.Now(),
	}
	s.dispatcher = NewCommandDispatcher(s)
	s.world.StartTicker()
	return s
}

func (s *Server) Config() *Config                { return s.cfg }
func (s *Server) World() *World                  { return s.world }
func (s *Server) Metrics() *ServerMetrics        { return s.metrics }
func (s *Server) Dispatcher() *CommandDispatcher { return s.dispatcher }
func (s *Server) Uptime() time.Duration          { return time.Since(s.startedAt) }

// AddPlayer 晋升：接管 Client 的所有权并构造 Player。
// 构造失败时返回错误，由反应器丢弃该连接而不是悄悄丢失令牌。
func (s *Server) AddPlayer(c *Client) (*Player, *World, error) {
	if c.profileName == "" {
		return nil, nil, fmt.Errorf("connection #%d has no login profile", c.ID)
	}
	if s.world.Count() >= s.cfg.MaxPlayers {
		return nil, nil, fmt.Errorf("server is full (%d/%d)", s.world.Count(), s.cfg.MaxPlayers)
	}
	p := &Player{
		Client: c,
		Profile: Profile{
			UUID: uuid.New(),
			Name: c.profileName,
		},
		EntityID: s.nextEntityID.Add(1),
	}
	// 晋升即进入会话：此后 Keep-Alive 活性检查开始生效
	c.setState(StatePlay)
	return p, s.world, nil
}
