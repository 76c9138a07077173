package vectorindex

import (
	"context"
	"math"
	"sync"
)

// MemoryIndex is an in-process Index for tests and single-node
// deployments, computing cosine similarity by brute force. Grounded on the
// same in-memory-twin pattern as objectstore.MemoryStore and
// metadata.MemoryStore.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.ChunkID] = e
	}
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range chunkIDs {
		delete(m.entries, id)
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, tenantID string, query []float32, k int, probes int) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if k <= 0 {
		k = 10
	}
	var out []Result
	for _, e := range m.entries {
		if e.TenantID != tenantID {
			continue
		}
		out = append(out, Result{ChunkID: e.ChunkID, Score: cosineScore(query, e.Vector)})
	}
	sortResults(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error { return nil }

// cosineScore returns a [0,1] score derived from cosine similarity, matching
// spec.md §4.6's score definition so every backend reports values on the
// same scale regardless of how negatively correlated two vectors are.
func cosineScore(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return normalizeScore(similarity)
}

// normalizeScore maps a cosine similarity in [-1,1] onto a score in [0,1],
// matching the pgvector and Qdrant backends' normalization so all three
// report values on the same scale.
func normalizeScore(cosineSimilarity float64) float64 {
	return (1 + cosineSimilarity) / 2
}

var _ Index = (*MemoryIndex)(nil)
