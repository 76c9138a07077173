// Package embedder implements the Embedding Provider (C5): it maps text
// batches to fixed-dimension, L2-normalized vectors. Two variants are
// interchangeable behind the same interface — a local deterministic
// embedder for tests and single-node deployments, and a remote HTTP
// embedder with retry/backoff for a real inference server.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"

	"ragcore/internal/config"
)

// ErrUnavailable is returned when the remote embedding endpoint cannot be
// reached after exhausting its retry budget.
var ErrUnavailable = errors.New("embedder: embedding provider unavailable")

// ErrDimensionMismatch is a startup-time ConfigError: the provider's
// dimension disagrees with the vector index schema it will be stamped into.
var ErrDimensionMismatch = errors.New("embedder: dimension mismatch against index schema")

// Embedder is the capability contract every provider implements.
type Embedder interface {
	// EmbedBatch returns one L2-normalized vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// ProviderTag identifies which provider produced a vector, stamped onto
	// every Embedding row so mixed-provider indexes stay attributable.
	ProviderTag() string
	// Dimension returns the fixed output dimension D.
	Dimension() int
	Ping(ctx context.Context) error
}

// New constructs the configured Embedder and verifies its dimension matches
// the index schema's expected dimension, returning ErrDimensionMismatch as a
// startup ConfigError if not.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "", "local":
		e = NewLocal(cfg.Dimension, "local-v1")
	case "remote":
		e = NewRemote(cfg)
	default:
		return nil, fmt.Errorf("embedder: unknown provider %q", cfg.Provider)
	}

	if cfg.Dimension > 0 && e.Dimension() != cfg.Dimension {
		return nil, fmt.Errorf("%w: provider dimension %d, configured %d", ErrDimensionMismatch, e.Dimension(), cfg.Dimension)
	}
	return e, nil
}

// batched splits texts into groups of at most size, preserving order. Used
// by both provider variants so batch-size configuration behaves identically
// regardless of backend.
func batched(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}

func normalizeL2(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}
