package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ragcore/internal/config"
	"ragcore/internal/embedder"
	"ragcore/internal/llmprovider"
	"ragcore/internal/metadata"
	"ragcore/internal/retriever"
	"ragcore/internal/vectorindex"
)

type fakeProvider struct {
	text       string
	usage      llmprovider.Usage
	err        error
	streamErr  error
	calls      int
	streamText string
}

func (f *fakeProvider) Generate(_ context.Context, _ llmprovider.Request) (string, llmprovider.Usage, error) {
	f.calls++
	if f.err != nil {
		return "", llmprovider.Usage{}, f.err
	}
	return f.text, f.usage, nil
}

func (f *fakeProvider) GenerateStream(_ context.Context, _ llmprovider.Request, h llmprovider.StreamHandler) (string, llmprovider.Usage, error) {
	f.calls++
	if f.streamErr != nil {
		return "", llmprovider.Usage{}, f.streamErr
	}
	h.OnDelta(f.streamText)
	return f.streamText, f.usage, nil
}

type failingIndex struct{ vectorindex.Index }

func (failingIndex) Search(context.Context, string, []float32, int, int) ([]vectorindex.Result, error) {
	return nil, errors.New("index down")
}

func newTestOrchestrator(t *testing.T, llm llmprovider.Provider) (*Orchestrator, metadata.Store, vectorindex.Index, embedder.Embedder) {
	t.Helper()
	store := metadata.NewMemoryStore()
	idx := vectorindex.NewMemoryIndex()
	emb := embedder.NewLocal(16, "test-local")
	r := retriever.New(emb, idx, store, nil, config.RetrievalConfig{
		TopKDefault: 5, TopKMax: 20, MaxCtxTokens: 1000, MaxCtxCap: 4000, MaxCtxChunks: 6,
	})
	o := New(r, llm, NewMemoryCache(), config.LLMConfig{Model: "test-model"}, 0)
	return o, store, idx, emb
}

func seedOneChunk(t *testing.T, store metadata.Store, idx vectorindex.Index, emb embedder.Embedder, tenantID, docID, chunkID, text string) {
	t.Helper()
	ctx := context.Background()
	vecs, err := emb.EmbedBatch(ctx, []string{text})
	require.NoError(t, err)
	_, err = store.CreateDocument(ctx, metadata.Document{ID: docID, TenantID: tenantID, Name: "d.md", Mime: "text/markdown", StorageURI: "docs/" + docID})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceChunks(ctx, docID, []metadata.Chunk{{ID: chunkID, DocumentID: docID, Text: text, TokenCount: len(text) / 4, HeaderPath: []string{"Intro"}}}))
	require.NoError(t, idx.Upsert(ctx, []vectorindex.Entry{{ChunkID: chunkID, DocumentID: docID, TenantID: tenantID, Vector: vecs[0], ProviderTag: emb.ProviderTag()}}))
}

func TestAnswerCallsLLMAndExtractsCitedMatch(t *testing.T) {
	llm := &fakeProvider{text: "The fox jumps [1].", usage: llmprovider.Usage{InputTokens: 10, OutputTokens: 5}}
	o, store, idx, emb := newTestOrchestrator(t, llm)
	seedOneChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-1", "the quick brown fox jumps over the lazy dog")

	resp, err := o.Answer(context.Background(), Request{TenantID: "tenant-a", Query: "the quick brown fox jumps over the lazy dog"})
	require.NoError(t, err)
	require.Equal(t, "The fox jumps [1].", resp.Answer)
	require.Len(t, resp.Citations, 1)
	require.Equal(t, "chunk-1", resp.Citations[0].ChunkID)
	require.False(t, resp.Cached)
	require.Equal(t, 1, llm.calls)
}

func TestAnswerSecondCallHitsCacheWithoutCallingLLM(t *testing.T) {
	llm := &fakeProvider{text: "answer [1]", usage: llmprovider.Usage{InputTokens: 1, OutputTokens: 1}}
	o, store, idx, emb := newTestOrchestrator(t, llm)
	seedOneChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-1", "rivers and lakes and streams of water")

	req := Request{TenantID: "tenant-a", Query: "rivers and lakes and streams of water"}
	_, err := o.Answer(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, llm.calls)

	resp2, err := o.Answer(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp2.Cached)
	require.Equal(t, 1, llm.calls, "second call must not invoke the provider again")
}

func TestAnswerWithNoMatchesStillCallsLLM(t *testing.T) {
	llm := &fakeProvider{text: "I don't know based on the available context."}
	o, _, _, _ := newTestOrchestrator(t, llm)

	resp, err := o.Answer(context.Background(), Request{TenantID: "tenant-a", Query: "anything at all"})
	require.NoError(t, err)
	require.Equal(t, "I don't know based on the available context.", resp.Answer)
	require.Equal(t, 1, llm.calls, "the LLM must still be called when retrieval returns zero matches")
}

func TestAnswerRetrievalFailureSkipsLLM(t *testing.T) {
	llm := &fakeProvider{text: "should never be returned"}
	store := metadata.NewMemoryStore()
	emb := embedder.NewLocal(16, "test-local")
	r := retriever.New(emb, failingIndex{}, store, nil, config.RetrievalConfig{TopKDefault: 5})
	o := New(r, llm, NewMemoryCache(), config.LLMConfig{}, 0)

	_, err := o.Answer(context.Background(), Request{TenantID: "tenant-a", Query: "anything"})
	require.ErrorIs(t, err, ErrRetrievalUnavailable)
	require.Equal(t, 0, llm.calls)
}

func TestAnswerStreamEmitsChunkThenDone(t *testing.T) {
	llm := &fakeProvider{streamText: "streamed answer [1]", usage: llmprovider.Usage{InputTokens: 2, OutputTokens: 3}}
	o, store, idx, emb := newTestOrchestrator(t, llm)
	seedOneChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-1", "mountains and valleys and forests")

	rec := &recordingStreamHandler{}
	o.AnswerStream(context.Background(), Request{TenantID: "tenant-a", Query: "mountains and valleys and forests"}, rec)

	require.Equal(t, []string{"streamed answer [1]"}, rec.chunks)
	require.NotNil(t, rec.doneUsage)
	require.Equal(t, llmprovider.Usage{InputTokens: 2, OutputTokens: 3}, *rec.doneUsage)
	require.Len(t, rec.doneCitations, 1)
	require.Nil(t, rec.err)
}

func TestAnswerStreamEmitsErrorAndDoesNotCacheOnLLMFailure(t *testing.T) {
	llm := &fakeProvider{streamErr: errors.New("provider exploded")}
	o, store, idx, emb := newTestOrchestrator(t, llm)
	seedOneChunk(t, store, idx, emb, "tenant-a", "doc-1", "chunk-1", "deserts and canyons and mesas")

	req := Request{TenantID: "tenant-a", Query: "deserts and canyons and mesas"}
	rec := &recordingStreamHandler{}
	o.AnswerStream(context.Background(), req, rec)
	require.Error(t, rec.err)
	require.Nil(t, rec.doneUsage)

	_, ok, err := o.cache.Get(context.Background(), o.fingerprint(req, "test-model"))
	require.NoError(t, err)
	require.False(t, ok, "partial output from a failed stream must not be cached")
}

func TestExtractCitationsDedupesPreservingFirstOccurrenceOrder(t *testing.T) {
	matches := []retriever.Match{{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"}}
	got := extractCitations("see [2] and [1] and again [2]", matches)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].ChunkID)
	require.Equal(t, "a", got[1].ChunkID)
}

func TestExtractCitationsFallsBackToAllMatchesWithoutMarkers(t *testing.T) {
	matches := []retriever.Match{{ChunkID: "a"}, {ChunkID: "b"}}
	got := extractCitations("no markers here", matches)
	require.Equal(t, matches, got)
}

type recordingStreamHandler struct {
	chunks        []string
	doneCitations []Match
	doneUsage     *Usage
	err           error
}

func (r *recordingStreamHandler) OnChunk(text string) { r.chunks = append(r.chunks, text) }
func (r *recordingStreamHandler) OnDone(citations []Match, usage Usage) {
	r.doneCitations = citations
	u := usage
	r.doneUsage = &u
}
func (r *recordingStreamHandler) OnError(err error) { r.err = err }
