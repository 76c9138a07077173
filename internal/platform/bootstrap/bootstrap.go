// Package bootstrap constructs the storage and messaging backends shared by
// both processes this system ships as (the HTTP facade and the job runner),
// so the backend-selection switches (pgvector vs. qdrant, redis vs. kafka,
// local vs. remote embedding) live in one place instead of being duplicated
// across cmd/apiserver and cmd/worker. Grounded on the wiring style of
// manifold's cmd/orchestrator/main.go: config.Load() first, then construct
// each backend in turn and fail fast with a wrapped error naming the stage
// that failed.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ragcore/internal/config"
	"ragcore/internal/embedder"
	"ragcore/internal/eventbus"
	"ragcore/internal/metadata"
	"ragcore/internal/objectstore"
	"ragcore/internal/vectorindex"
)

// Resources holds every backend both cmd/apiserver and cmd/worker need.
// Close releases every pool/client it opened, in reverse construction order.
type Resources struct {
	Store   metadata.Store
	Objects objectstore.ObjectStore
	Embed   embedder.Embedder
	Index   vectorindex.Index
	Bus     eventbus.Bus

	closers []func()
}

// Close releases every backend connection Build opened.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// Build connects every storage/messaging backend named in cfg, selecting
// the pgvector-vs-qdrant and redis-vs-kafka variants cfg.validate already
// confirmed are internally consistent.
func Build(ctx context.Context, cfg config.Config) (*Resources, error) {
	r := &Resources{}

	store, err := metadata.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: metadata store: %w", err)
	}
	r.Store = store
	r.closers = append(r.closers, func() { store.Close() })

	objects, err := objectstore.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: object store: %w", err)
	}
	r.Objects = objects

	embed, err := embedder.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: embedder: %w", err)
	}
	r.Embed = embed

	index, indexCloser, err := buildVectorIndex(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: vector index: %w", err)
	}
	r.Index = index
	if indexCloser != nil {
		r.closers = append(r.closers, indexCloser)
	}

	bus, busCloser, err := buildEventBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: event bus: %w", err)
	}
	r.Bus = bus
	if busCloser != nil {
		r.closers = append(r.closers, busCloser)
	}

	return r, nil
}

func buildVectorIndex(ctx context.Context, cfg config.Config) (vectorindex.Index, func(), error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		idx, err := vectorindex.NewQdrantIndex(ctx, cfg.Vector.QdrantURL, cfg.Vector.Collection, cfg.Embedding.Dimension, cfg.Vector.Metric)
		if err != nil {
			return nil, nil, err
		}
		return idx, nil, nil
	default:
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("open pgvector pool: %w", err)
		}
		idx, err := vectorindex.NewPostgresIndex(ctx, pool, cfg.Embedding.Dimension, cfg.Vector.Metric, cfg.Vector.Lists, cfg.Vector.Probes)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return idx, pool.Close, nil
	}
}

func buildEventBus(cfg config.Config) (eventbus.Bus, func(), error) {
	switch cfg.Bus.Backend {
	case "kafka":
		brokers, err := splitBrokers(cfg.Bus.URL)
		if err != nil {
			return nil, nil, err
		}
		return eventbus.NewKafkaBus(brokers), nil, nil
	default:
		opts, err := redis.ParseURL(cfg.Bus.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		bus, err := eventbus.NewRedisBus(opts.Addr, opts.Password, opts.DB)
		if err != nil {
			return nil, nil, err
		}
		return bus, nil, nil
	}
}

func splitBrokers(csv string) ([]string, error) {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no brokers configured in BUS_URL")
	}
	return out, nil
}
