package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// KafkaBus backs the Event Bus with Kafka, for deployments that already run
// a Kafka cluster for other event traffic. Grounded on manifold's
// internal/workspaces.KafkaCommitPublisher for the writer side
// (kafka.Writer with kafka.LeastBytes balancing) and
// internal/orchestrator.StartKafkaConsumer for the reader side
// (kafka.ReaderConfig with a per-subscriber consumer group). Every tenant
// gets its own topic name (`{tenant_id}.jobs`), so subscribing is opening a
// fresh reader rather than filtering a shared topic — the same isolation
// guarantee RedisBus gets from per-tenant channel names.
type KafkaBus struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaBus(brokers []string) *KafkaBus {
	return &KafkaBus{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (b *KafkaBus) writerFor(tenantID string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.writers[tenantID]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(b.brokers...),
		Topic:    topic(tenantID),
		Balancer: &kafka.LeastBytes{},
	}
	b.writers[tenantID] = w
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, tenantID string, event Event) error {
	event.TenantID = tenantID
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	return b.writerFor(tenantID).WriteMessages(ctx, kafka.Message{Value: payload})
}

func (b *KafkaBus) Subscribe(ctx context.Context, tenantID string) (Subscription, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		Topic:       topic(tenantID),
		GroupID:     "eventbus-" + tenantID + "-" + uuid.NewString(),
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	out := make(chan Event, 64)
	ctx, cancelCtx := context.WithCancel(ctx)
	go func() {
		defer close(out)
		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(m.Value, &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	cancel := func() {
		cancelCtx()
		_ = reader.Close()
	}
	return Subscription{Events: out, Cancel: cancel}, nil
}

func (b *KafkaBus) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("eventbus: dial kafka: %w", err)
	}
	return conn.Close()
}
