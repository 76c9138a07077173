package metadata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClaimJobIsExclusivePerJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.EnqueueJob(ctx, Job{ID: "j1", TenantID: "t1", DocumentID: "d1", Kind: JobParse, MaxAttempts: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	claims := make(chan Job, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, err := store.ClaimJob(ctx, JobParse)
			if err == nil {
				claims <- j
			}
		}()
	}
	wg.Wait()
	close(claims)

	count := 0
	for range claims {
		count++
	}
	require.Equal(t, 1, count, "exactly one goroutine should claim the job")
}

func TestClaimJobRespectsAvailableAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.EnqueueJob(ctx, Job{
		ID: "future", TenantID: "t1", DocumentID: "d1", Kind: JobEmbed,
		AvailableAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = store.ClaimJob(ctx, JobEmbed)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClaimJobPicksOldestAvailable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_, _ = store.EnqueueJob(ctx, Job{ID: "newer", TenantID: "t1", DocumentID: "d1", Kind: JobChunk, AvailableAt: now.Add(-time.Minute)})
	_, _ = store.EnqueueJob(ctx, Job{ID: "older", TenantID: "t1", DocumentID: "d1", Kind: JobChunk, AvailableAt: now.Add(-time.Hour)})

	claimed, err := store.ClaimJob(ctx, JobChunk)
	require.NoError(t, err)
	require.Equal(t, "older", claimed.ID)
}

func TestTenantIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, Document{ID: "doc1", TenantID: "tenant-a"})
	require.NoError(t, err)

	_, err = store.GetDocument(ctx, TenantScope{TenantID: "tenant-b"}, "doc1")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetDocument(ctx, TenantScope{TenantID: "tenant-a"}, "doc1")
	require.NoError(t, err)
	require.Equal(t, "doc1", got.ID)
}

func TestReplaceChunksClearsStaleEmbeddings(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, Document{ID: "doc1", TenantID: "t1"})
	require.NoError(t, err)

	require.NoError(t, store.ReplaceChunks(ctx, "doc1", []Chunk{{ID: "c1", DocumentID: "doc1"}}))
	require.NoError(t, store.UpsertEmbeddings(ctx, []Embedding{{ChunkID: "c1", DocumentID: "doc1", TenantID: "t1"}}))

	require.NoError(t, store.ReplaceChunks(ctx, "doc1", []Chunk{{ID: "c2", DocumentID: "doc1"}}))

	chunks, err := store.GetChunksByDocument(ctx, TenantScope{TenantID: "t1"}, "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "c2", chunks[0].ID)

	_, stillThere := store.embeddings["c1"]
	require.False(t, stillThere, "stale embedding for replaced chunk should be cleared")
}

func TestFindDocumentByHashReturnsMostRecent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	scope := TenantScope{TenantID: "t1"}

	_, err := store.CreateDocument(ctx, Document{ID: "d1", TenantID: "t1", ContentHash: "h1"})
	require.NoError(t, err)

	doc, ok, err := store.FindDocumentByHash(ctx, scope, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "d1", doc.ID)

	time.Sleep(time.Millisecond)
	_, err = store.CreateDocument(ctx, Document{ID: "d2", TenantID: "t1", ContentHash: "h1"})
	require.NoError(t, err)

	doc, ok, err = store.FindDocumentByHash(ctx, scope, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "d2", doc.ID)

	_, ok, err = store.FindDocumentByHash(ctx, scope, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListJobsByDocumentReturnsOldestFirstAndIsTenantScoped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.EnqueueJob(ctx, Job{ID: "j1", TenantID: "t1", DocumentID: "d1", Kind: JobParse})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = store.EnqueueJob(ctx, Job{ID: "j2", TenantID: "t1", DocumentID: "d1", Kind: JobChunk})
	require.NoError(t, err)
	_, err = store.EnqueueJob(ctx, Job{ID: "j3", TenantID: "t2", DocumentID: "d1", Kind: JobParse})
	require.NoError(t, err)

	jobs, err := store.ListJobsByDocument(ctx, TenantScope{TenantID: "t1"}, "d1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "j1", jobs[0].ID)
	require.Equal(t, "j2", jobs[1].ID)
}
