package server

import (
	"testing"
)

// TestTokenUniqueness 连续分配 N 个令牌两两不同，且不与监听令牌冲突
func TestTokenUniqueness(t *testing.T) {
	t.Parallel()

	alloc := newTokenAllocator()
	const n = 10000
	seen := make(map[Token]bool, n)
	for i := 0; i < n; i++ {
		tok := alloc.Next()
		if tok == ListenerToken {
			t.Fatalf("allocator returned the reserved listener token")
		}
		if seen[tok] {
			t.Fatalf("token %d allocated twice", tok)
		}
		seen[tok] = true
	}
}

// TestTokenMonotonic 令牌单调递增
func TestTokenMonotonic(t *testing.T) {
	t.Parallel()

	alloc := newTokenAllocator()
	prev := alloc.Next()
	for i := 0; i < 100; i++ {
		next := alloc.Next()
		if next <= prev {
			t.Fatalf("token %d not greater than previous %d", next, prev)
		}
		prev = next
	}
}
