package server

// Token 连接令牌：注册表分发与事件派发的键。
// 在存活连接之间保证唯一；实际实现为进程生命周期内单调递增。
type Token uint64

// ListenerToken 监听套接字的保留令牌，连接令牌从它之上开始分配
const ListenerToken Token = 0

// tokenAllocator 连接令牌分配器，仅在反应器上下文使用，无需加锁
type tokenAllocator struct {
	next Token
}

func newTokenAllocator() tokenAllocator {
	return tokenAllocator{next: ListenerToken}
}

// Next 分配下一个令牌
func (a *tokenAllocator) Next() Token {
	a.next++
	return a.next
}
