package jobrunner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ragcore/internal/chunker"
	"ragcore/internal/config"
	"ragcore/internal/embedder"
	"ragcore/internal/eventbus"
	"ragcore/internal/metadata"
	"ragcore/internal/objectstore"
	"ragcore/internal/parser"
	"ragcore/internal/vectorindex"
)

func newTestRunner(t *testing.T) (*Runner, metadata.Store, objectstore.ObjectStore, eventbus.Bus) {
	t.Helper()
	store := metadata.NewMemoryStore()
	objects := objectstore.NewMemoryStore()
	bus := eventbus.NewMemoryBus()
	idx := vectorindex.NewMemoryIndex()
	emb := embedder.NewLocal(16, "test-local")
	r := New(store, objects, parser.New(), chunker.New(chunker.DefaultConfig()), emb, idx, bus, config.JobsConfig{
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		BackoffCap:   10 * time.Millisecond,
		ParseWorkers: 1,
		ChunkWorkers: 1,
		EmbedWorkers: 1,
	})
	return r, store, objects, bus
}

func waitForStatus(t *testing.T, store metadata.Store, scope metadata.TenantScope, docID string, want metadata.DocumentStatus) metadata.Document {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := store.GetDocument(context.Background(), scope, docID)
		require.NoError(t, err)
		if doc.Status == want || doc.Status == metadata.DocumentFailed {
			return doc
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("document %s did not reach status %q in time", docID, want)
	return metadata.Document{}
}

func TestRunnerDrivesDocumentFromUploadedToReady(t *testing.T) {
	r, store, objects, bus := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scope := metadata.TenantScope{TenantID: "t1"}
	docID := uuid.NewString()
	_, err := store.CreateDocument(ctx, metadata.Document{
		ID:         docID,
		TenantID:   scope.TenantID,
		Name:       "notes.md",
		Mime:       "text/markdown",
		StorageURI: "docs/" + docID,
	})
	require.NoError(t, err)

	body := "# Title\n\nFirst paragraph with enough content to form a chunk on its own terms.\n\n## Section\n\nSecond paragraph continues the discussion at reasonable length so tokenization produces a sane chunk."
	_, err = objects.Put(ctx, "docs/"+docID, strings.NewReader(body), objectstore.PutOptions{})
	require.NoError(t, err)

	sub, err := bus.Subscribe(ctx, scope.TenantID)
	require.NoError(t, err)
	defer sub.Cancel()

	_, err = store.EnqueueJob(ctx, metadata.Job{
		ID: uuid.NewString(), TenantID: scope.TenantID, DocumentID: docID,
		Kind: metadata.JobParse, MaxAttempts: 3,
	})
	require.NoError(t, err)

	r.Start(ctx)

	doc := waitForStatus(t, store, scope, docID, metadata.DocumentReady)
	require.Equal(t, metadata.DocumentReady, doc.Status)

	chunks, err := store.GetChunksByDocument(ctx, scope, docID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	hits, err := r.index.Search(ctx, scope.TenantID, make([]float32, 16), len(chunks), 1)
	require.NoError(t, err)
	require.Len(t, hits, len(chunks))

	var sawParseStarted bool
	for {
		select {
		case ev := <-sub.Events:
			if ev.Event == eventbus.EventParseStarted {
				sawParseStarted = true
			}
		case <-time.After(50 * time.Millisecond):
			goto doneDrain
		}
	}
doneDrain:
	require.True(t, sawParseStarted, "expected to observe at least a parse_started event")
}

func TestRunnerMarksDocumentFailedOnTerminalParseError(t *testing.T) {
	r, store, objects, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scope := metadata.TenantScope{TenantID: "t1"}
	docID := uuid.NewString()
	_, err := store.CreateDocument(ctx, metadata.Document{
		ID: docID, TenantID: scope.TenantID, Name: "bad.pdf", Mime: "application/pdf",
		StorageURI: "docs/" + docID,
	})
	require.NoError(t, err)
	_, err = objects.Put(ctx, "docs/"+docID, strings.NewReader("not a real pdf"), objectstore.PutOptions{})
	require.NoError(t, err)

	_, err = store.EnqueueJob(ctx, metadata.Job{
		ID: uuid.NewString(), TenantID: scope.TenantID, DocumentID: docID,
		Kind: metadata.JobParse, MaxAttempts: 3,
	})
	require.NoError(t, err)

	r.Start(ctx)
	doc := waitForStatus(t, store, scope, docID, metadata.DocumentFailed)
	require.Equal(t, metadata.DocumentFailed, doc.Status)
}

func TestBackoffDurationDoublesAndCaps(t *testing.T) {
	base := 10 * time.Millisecond
	ceiling := 100 * time.Millisecond

	require.Equal(t, base, backoffDuration(1, base, ceiling))
	require.Equal(t, 2*base, backoffDuration(2, base, ceiling))
	require.Equal(t, 4*base, backoffDuration(3, base, ceiling))
	require.Equal(t, ceiling, backoffDuration(10, base, ceiling))
}
