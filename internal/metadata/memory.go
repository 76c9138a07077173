package metadata

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store entirely in-process, for tests and for
// single-node deployments that don't need Postgres. Claiming uses a mutex
// instead of row locks, but preserves the same "oldest eligible job wins,
// exactly one claimant" guarantee.
type MemoryStore struct {
	mu         sync.Mutex
	documents  map[string]Document
	jobs       map[string]Job
	elements   map[string][]Element
	chunks     map[string][]Chunk
	embeddings map[string]Embedding
	seq        int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:  make(map[string]Document),
		jobs:       make(map[string]Job),
		elements:   make(map[string][]Element),
		chunks:     make(map[string][]Chunk),
		embeddings: make(map[string]Embedding),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if doc.Status == "" {
		doc.Status = DocumentUploaded
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	doc.CreatedAt, doc.UpdatedAt = now, now
	m.documents[doc.ID] = doc
	return doc, nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, scope TenantScope, documentID string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[documentID]
	if !ok || d.TenantID != scope.TenantID {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryStore) FindDocumentByHash(ctx context.Context, scope TenantScope, contentHash string) (Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best Document
	found := false
	for _, d := range m.documents {
		if d.TenantID != scope.TenantID || d.ContentHash != contentHash {
			continue
		}
		if !found || d.CreatedAt.After(best.CreatedAt) {
			best, found = d, true
		}
	}
	return best, found, nil
}

func (m *MemoryStore) UpdateDocumentStatus(ctx context.Context, scope TenantScope, documentID string, status DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[documentID]
	if !ok || d.TenantID != scope.TenantID {
		return ErrNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	m.documents[documentID] = d
	return nil
}

func (m *MemoryStore) BumpDocumentVersion(ctx context.Context, scope TenantScope, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[documentID]
	if !ok || d.TenantID != scope.TenantID {
		return 0, ErrNotFound
	}
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	m.documents[documentID] = d
	return d.Version, nil
}

func (m *MemoryStore) EnqueueJob(ctx context.Context, job Job) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = JobQueued
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	job.CreatedAt, job.UpdatedAt = now, now
	m.jobs[job.ID] = job
	return job, nil
}

func (m *MemoryStore) ClaimJob(ctx context.Context, kind JobKind) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var candidates []Job
	for _, j := range m.jobs {
		if j.Kind == kind && j.Status == JobQueued && !j.AvailableAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return Job{}, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].AvailableAt.Before(candidates[j].AvailableAt)
	})
	claimed := candidates[0]
	claimed.Status = JobRunning
	claimed.Attempts++
	claimed.UpdatedAt = now
	m.jobs[claimed.ID] = claimed
	return claimed, nil
}

func (m *MemoryStore) GetJob(ctx context.Context, scope TenantScope, jobID string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.TenantID != scope.TenantID {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (m *MemoryStore) ListJobsByDocument(ctx context.Context, scope TenantScope, documentID string) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Job
	for _, j := range m.jobs {
		if j.DocumentID != documentID || j.TenantID != scope.TenantID {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = j
	return nil
}

func (m *MemoryStore) FinalizeJob(ctx context.Context, jobID string, status JobStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	j.LastError = lastError
	j.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = j
	return nil
}

func (m *MemoryStore) EnqueueRetry(ctx context.Context, job Job, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	j.Status = JobQueued
	j.LastError = job.LastError
	j.AvailableAt = time.Now().UTC().Add(delay)
	j.UpdatedAt = time.Now().UTC()
	m.jobs[job.ID] = j
	return nil
}

func (m *MemoryStore) JobStatusCounts(ctx context.Context, scope TenantScope, documentID string) (DocumentStatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c DocumentStatusCounts
	for _, j := range m.jobs {
		if j.DocumentID != documentID || j.TenantID != scope.TenantID {
			continue
		}
		switch j.Status {
		case JobQueued:
			c.Queued++
		case JobRunning:
			c.Running++
		case JobDone:
			c.Done++
		case JobFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (m *MemoryStore) UpsertElements(ctx context.Context, documentID string, elements []Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]Element, len(elements))
	copy(cp, elements)
	m.elements[documentID] = cp
	return nil
}

func (m *MemoryStore) GetElements(ctx context.Context, scope TenantScope, documentID string) ([]Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[documentID]
	if !ok || d.TenantID != scope.TenantID {
		return nil, ErrNotFound
	}
	out := make([]Element, len(m.elements[documentID]))
	copy(out, m.elements[documentID])
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (m *MemoryStore) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.chunks[documentID] {
		delete(m.embeddings, c.ID)
	}
	cp := make([]Chunk, len(chunks))
	copy(cp, chunks)
	m.chunks[documentID] = cp
	return nil
}

func (m *MemoryStore) GetChunksByIDs(ctx context.Context, scope TenantScope, chunkIDs []string) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = true
	}
	var out []Chunk
	for docID, cs := range m.chunks {
		d, ok := m.documents[docID]
		if !ok || d.TenantID != scope.TenantID {
			continue
		}
		for _, c := range cs {
			if want[c.ID] {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) GetChunksByDocument(ctx context.Context, scope TenantScope, documentID string) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[documentID]
	if !ok || d.TenantID != scope.TenantID {
		return nil, ErrNotFound
	}
	out := make([]Chunk, len(m.chunks[documentID]))
	copy(out, m.chunks[documentID])
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (m *MemoryStore) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range embeddings {
		m.embeddings[e.ChunkID] = e
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
