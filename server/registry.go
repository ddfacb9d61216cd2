package server

// registry 连接注册表：晋升前（clients）与晋升后（players）两个映射。
// 仅反应器上下文读写，无需加锁。
// 不变式：两个映射的键集合任何时刻不相交；一个令牌至多经历一次
// clients→players 的迁移，绝不反向。
type registry struct {
	clients map[Token]*Client
	players map[Token]*Player
}

func newRegistry() *registry {
	return &registry{
		clients: make(map[Token]*Client),
		players: make(map[Token]*Player),
	}
}

func (r *registry) addClient(c *Client) {
	r.clients[c.ID] = c
}

func (r *registry) client(t Token) (*Client, bool) {
	c, ok := r.clients[t]
	return c, ok
}

func (r *registry) removeClient(t Token) (*Client, bool) {
	c, ok := r.clients[t]
	if ok {
		delete(r.clients, t)
	}
	return c, ok
}

// addPlayer 完成晋升的插入步骤；调用方必须先 removeClient，
// 保证令牌不会同时出现在两个映射中
func (r *registry) addPlayer(p *Player) {
	r.players[p.Client.ID] = p
}

func (r *registry) player(t Token) (*Player, bool) {
	p, ok := r.players[t]
	return p, ok
}

func (r *registry) removePlayer(t Token) (*Player, bool) {
	p, ok := r.players[t]
	if ok {
		delete(r.players, t)
	}
	return p, ok
}

func (r *registry) counts() (clients, players int) {
	return len(r.clients), len(r.players)
}
