package memory

import (
	"context"
	"sync"
)

// Guard is an in-process event idempotency guard.
type Guard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{seen: make(map[string]struct{})}
}

func (g *Guard) Claim(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[eventID]; ok {
		return false, nil
	}
	g.seen[eventID] = struct{}{}
	return true, nil
}

func (g *Guard) Release(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, eventID)
	return nil
}
