package eventbus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-node deployments,
// fanning published events out to each tenant's live subscriber channels.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Event)}
}

func (b *MemoryBus) Publish(ctx context.Context, tenantID string, event Event) error {
	event.TenantID = tenantID
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[tenantID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, tenantID string) (Subscription, error) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[tenantID] = append(b.subs[tenantID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[tenantID]
		for i, c := range subs {
			if c == ch {
				b.subs[tenantID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return Subscription{Events: ch, Cancel: cancel}, nil
}

func (b *MemoryBus) Ping(ctx context.Context) error { return nil }

var _ Bus = (*MemoryBus)(nil)
