package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragcore/internal/config"
	"ragcore/internal/embedder"
	"ragcore/internal/metadata"
	"ragcore/internal/vectorindex"
)

func seedChunk(t *testing.T, store metadata.Store, index vectorindex.Index, emb embedder.Embedder, tenantID, docID, chunkID, text string, headerPath []string) {
	t.Helper()
	ctx := context.Background()
	vectors, err := emb.EmbedBatch(ctx, []string{text})
	require.NoError(t, err)

	err = store.ReplaceChunks(ctx, docID, []metadata.Chunk{{
		ID:         chunkID,
		DocumentID: docID,
		Text:       text,
		TokenCount: len(text) / 4,
		HeaderPath: headerPath,
		Ordinal:    0,
	}})
	require.NoError(t, err)

	require.NoError(t, index.Upsert(ctx, []vectorindex.Entry{{
		ChunkID: chunkID, DocumentID: docID, TenantID: tenantID, Vector: vectors[0], ProviderTag: emb.ProviderTag(),
	}}))
	require.NoError(t, store.UpsertEmbeddings(ctx, []metadata.Embedding{{
		ChunkID: chunkID, DocumentID: docID, TenantID: tenantID, Vector: vectors[0],
		ProviderTag: emb.ProviderTag(), Dimension: emb.Dimension(),
	}}))
}

func newTestRetriever(t *testing.T) (*Retriever, metadata.Store, vectorindex.Index, embedder.Embedder) {
	t.Helper()
	store := metadata.NewMemoryStore()
	idx := vectorindex.NewMemoryIndex()
	emb := embedder.NewLocal(32, "test-local")
	r := New(emb, idx, store, nil, config.RetrievalConfig{
		TopKDefault:  5,
		TopKMax:      20,
		MaxCtxTokens: 1000,
		MaxCtxCap:    4000,
		MaxCtxChunks: 6,
	})
	return r, store, idx, emb
}

func mustCreateDocument(t *testing.T, store metadata.Store, tenantID, docID string) {
	t.Helper()
	_, err := store.CreateDocument(context.Background(), metadata.Document{
		ID: docID, TenantID: tenantID, Name: "doc.md", Mime: "text/markdown", StorageURI: "docs/" + docID,
	})
	require.NoError(t, err)
}

func TestRetrieveReturnsTopMatchForSimilarQuery(t *testing.T) {
	r, store, idx, emb := newTestRetriever(t)
	mustCreateDocument(t, store, "tenant-a", "doc-1")
	seedChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-1",
		"The quick brown fox jumps over the lazy dog repeatedly in the meadow.",
		[]string{"Animals", "Foxes"})

	resp, err := r.Retrieve(context.Background(), Request{
		TenantID: "tenant-a",
		Query:    "The quick brown fox jumps over the lazy dog repeatedly in the meadow.",
		TopK:     5,
	})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	require.Equal(t, "chunk-1", resp.Matches[0].ChunkID)
	require.Equal(t, []string{"Animals", "Foxes"}, resp.Matches[0].Breadcrumbs)
	require.InDelta(t, 1.0, resp.Matches[0].Score, 1e-6)
}

func TestRetrieveIsTenantScoped(t *testing.T) {
	r, store, idx, emb := newTestRetriever(t)
	mustCreateDocument(t, store, "tenant-a", "doc-1")
	seedChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-1", "secret tenant a content", nil)

	resp, err := r.Retrieve(context.Background(), Request{
		TenantID: "tenant-b",
		Query:    "secret tenant a content",
	})
	require.NoError(t, err)
	require.Empty(t, resp.Matches)
}

func TestRetrieveStopsAtMaxCtxChunks(t *testing.T) {
	r, store, idx, emb := newTestRetriever(t)
	r.cfg.MaxCtxChunks = 2
	mustCreateDocument(t, store, "tenant-a", "doc-1")
	for i, text := range []string{
		"alpha beta gamma delta content one",
		"alpha beta gamma delta content two",
		"alpha beta gamma delta content three",
	} {
		seedChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-"+string(rune('1'+i)), text, nil)
	}

	resp, err := r.Retrieve(context.Background(), Request{
		TenantID: "tenant-a",
		Query:    "alpha beta gamma delta content",
		TopK:     10,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(resp.Matches), 2)
}

func TestRetrieveProducesNoDuplicateChunkIDs(t *testing.T) {
	r, store, idx, emb := newTestRetriever(t)
	mustCreateDocument(t, store, "tenant-a", "doc-1")
	seedChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-1", "unique passage about rivers and lakes", nil)

	resp, err := r.Retrieve(context.Background(), Request{
		TenantID: "tenant-a",
		Query:    "rivers and lakes",
		TopK:     10,
	})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, m := range resp.Matches {
		require.False(t, seen[m.ChunkID], "duplicate chunk id %s", m.ChunkID)
		seen[m.ChunkID] = true
	}
}

func TestSnippetTruncatesAtSentenceBoundary(t *testing.T) {
	text := "This is the first sentence. This is the second sentence that runs long enough to get cut off mid-way through."
	s := snippet(text, 40)
	require.Equal(t, "This is the first sentence.", s)
}

func TestSnippetFallsBackToEllipsisWithoutBoundary(t *testing.T) {
	text := "anunbrokenwordwithnopunctuationatallforalongwhile"
	s := snippet(text, 10)
	require.Equal(t, "anunbroken…", s)
}
