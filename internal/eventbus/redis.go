package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus backs the Event Bus with Redis Pub/Sub. Grounded on manifold's
// internal/workspaces.RedisGenerationCache (PublishInvalidation/
// SubscribeInvalidations): JSON-encoded payload over a channel keyed by
// tenant, buffered delivery channel with a non-blocking send so a slow
// consumer can't stall the subscription goroutine.
type RedisBus struct {
	client redis.UniversalClient
}

func NewRedisBus(addr, password string, db int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("eventbus: connect redis: %w", err)
	}
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, tenantID string, event Event) error {
	event.TenantID = tenantID
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	return b.client.Publish(ctx, topic(tenantID), data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, tenantID string) (Subscription, error) {
	sub := b.client.Subscribe(ctx, topic(tenantID))
	if _, err := sub.Receive(ctx); err != nil {
		return Subscription{}, fmt.Errorf("eventbus: subscribe: %w", err)
	}

	out := make(chan Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				default:
					// Slow consumer: drop rather than block the subscription.
				}
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = sub.Close()
	}
	return Subscription{Events: out, Cancel: cancel}, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
