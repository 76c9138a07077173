package embedder

import (
	"context"
	"hash/fnv"
)

// LocalEmbedder is a dependency-free, deterministic embedder: it hashes byte
// 3-grams into a fixed-size vector and L2-normalizes the result. Suitable
// for tests and single-node deployments without a real inference backend.
// Grounded on manifold's deterministicEmbedder (internal/rag/embedder),
// generalized to always normalize since spec.md §4.5 requires uniform
// L2-normalization across every provider.
type LocalEmbedder struct {
	dim int
	tag string
}

func NewLocal(dim int, tag string) *LocalEmbedder {
	if dim <= 0 {
		dim = 256
	}
	if tag == "" {
		tag = "local-v1"
	}
	return &LocalEmbedder{dim: dim, tag: tag}
}

func (l *LocalEmbedder) ProviderTag() string { return l.tag }
func (l *LocalEmbedder) Dimension() int      { return l.dim }
func (l *LocalEmbedder) Ping(_ context.Context) error { return nil }

func (l *LocalEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = l.embedOne(t)
	}
	return out, nil
}

func (l *LocalEmbedder) embedOne(s string) []float32 {
	v := make([]float32, l.dim)
	b := []byte(s)
	switch {
	case len(b) == 0:
		return v
	case len(b) < 3:
		hashInto(l.tag, b, v)
	default:
		for i := 0; i <= len(b)-3; i++ {
			hashInto(l.tag, b[i:i+3], v)
		}
	}
	normalizeL2(v)
	return v
}

func hashInto(seed string, gram []byte, v []float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
