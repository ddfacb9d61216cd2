package server

import (
	"github.com/google/uuid"
)

// Profile 玩家档案：晋升时由服务器分配
type Profile struct {
	UUID uuid.UUID
	Name string
}

// Player 晋升后的连接：独占持有原 Client，外加世界/实体上下文。
// 只能经由 Server.AddPlayer 创建；拆除时套接字注销委托给内嵌的 Client。
type Player struct {
	Client   *Client
	Profile  Profile
	EntityID int32

	world *World
}

// processPackets 会话期数据包处理，走同一条协议路径
func (p *Player) processPackets(s *Server) {
	p.Client.processPackets(s)
}

// remove 移除钩子：退出世界并广播离开消息。由反应器在拆除时调用
func (p *Player) remove() {
	if p.world != nil {
		p.world.RemovePlayer(p)
	}
	Log.Infof("%s left the game (%s)", p.Profile.Name, p.Client.CloseReason())
}
