// Package retriever implements the Retriever (C10): embed a query, search
// the Vector Index, hydrate candidate chunks from the Metadata Store,
// optionally rerank, and assemble a token-budgeted context greedily in
// rank order. Grounded on manifold's internal/rag/retrieve package — this
// keeps its RetrieveOptions/QueryPlan-style separation of "what the caller
// asked for" from "what the algorithm does with it" and its Reranker
// interface shape, generalized from manifold's hybrid FTS+vector fusion
// pipeline down to the single vector-search path spec.md's data model
// supports (no full-text-search entity exists in this system).
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ragcore/internal/config"
	"ragcore/internal/embedder"
	"ragcore/internal/metadata"
	"ragcore/internal/vectorindex"
)

// ErrUnavailable covers embedding or vector index failure during a
// retrieval call; the caller surfaces this as a single retrieval-unavailable
// condition regardless of which upstream dependency failed.
var ErrUnavailable = errors.New("retriever: retrieval unavailable")

// Reranker optionally reorders Matches by relevance. NoopReranker is used
// when reranking is disabled or unconfigured.
type Reranker interface {
	Rerank(ctx context.Context, query string, matches []Match) ([]Match, error)
}

// NoopReranker leaves Match order unchanged.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, matches []Match) ([]Match, error) {
	return matches, nil
}

// Match is one piece of assembled context, aligned by index with the
// numbered context blocks the Answer Orchestrator builds its prompt from.
type Match struct {
	DocumentID  string
	ChunkID     string
	Page        *int
	Score       float64
	Snippet     string
	Breadcrumbs []string
}

// Request configures one retrieval call.
type Request struct {
	TenantID     string
	Query        string
	TopK         int
	Rerank       bool
	MaxCtxTokens int
}

// Response carries the assembled Matches and total tokens spent on context.
type Response struct {
	Matches   []Match
	CtxTokens int
}

// Retriever is the capability contract the Answer Orchestrator (C11) and
// the HTTP Facade's /query endpoint call against.
type Retriever struct {
	embed  embedder.Embedder
	index  vectorindex.Index
	store  metadata.Store
	rerank Reranker
	cfg    config.RetrievalConfig
}

func New(embed embedder.Embedder, index vectorindex.Index, store metadata.Store, rerank Reranker, cfg config.RetrievalConfig) *Retriever {
	if rerank == nil {
		rerank = NoopReranker{}
	}
	return &Retriever{embed: embed, index: index, store: store, rerank: rerank, cfg: cfg}
}

const defaultSnippetMaxChars = 400

// Retrieve runs the full C10 algorithm: embed, search, hydrate, optionally
// rerank, then greedily assemble context within req.MaxCtxTokens, stopping
// at MaxCtxChunks. Matches are ordered by final score desc with no
// duplicate chunk_ids, and every Match belongs to req.TenantID.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Response, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = r.cfg.TopKDefault
	}
	if r.cfg.TopKMax > 0 && topK > r.cfg.TopKMax {
		topK = r.cfg.TopKMax
	}
	maxCtxTokens := req.MaxCtxTokens
	if maxCtxTokens <= 0 {
		maxCtxTokens = r.cfg.MaxCtxTokens
	}
	if r.cfg.MaxCtxCap > 0 && maxCtxTokens > r.cfg.MaxCtxCap {
		maxCtxTokens = r.cfg.MaxCtxCap
	}
	maxCtxChunks := r.cfg.MaxCtxChunks
	if maxCtxChunks <= 0 {
		maxCtxChunks = 6
	}

	query := normalizeQuery(req.Query)

	vectors, err := r.embed.EmbedBatch(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		return Response{}, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}

	hits, err := r.index.Search(ctx, req.TenantID, vectors[0], topK, 0)
	if err != nil {
		return Response{}, fmt.Errorf("%w: vector search: %v", ErrUnavailable, err)
	}
	if len(hits) == 0 {
		return Response{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	scope := metadata.TenantScope{TenantID: req.TenantID}
	chunks, err := r.store.GetChunksByIDs(ctx, scope, ids)
	if err != nil {
		return Response{}, fmt.Errorf("%w: hydrate chunks: %v", ErrUnavailable, err)
	}
	chunkByID := make(map[string]metadata.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		c, ok := chunkByID[h.ChunkID]
		if !ok {
			continue // hydration race: chunk replaced/deleted between search and lookup
		}
		matches = append(matches, Match{
			DocumentID:  c.DocumentID,
			ChunkID:     c.ID,
			Page:        c.Page,
			Score:       h.Score,
			Snippet:     snippet(c.Text, defaultSnippetMaxChars),
			Breadcrumbs: append([]string(nil), c.HeaderPath...),
		})
	}

	if req.Rerank {
		reranked, err := r.rerank.Rerank(ctx, query, matches)
		if err != nil {
			return Response{}, fmt.Errorf("%w: rerank: %v", ErrUnavailable, err)
		}
		matches = reranked
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	}

	assembled := make([]Match, 0, maxCtxChunks)
	seen := make(map[string]bool, len(matches))
	ctxTokens := 0
	for _, m := range matches {
		if seen[m.ChunkID] {
			continue
		}
		if len(assembled) >= maxCtxChunks {
			break
		}
		c := chunkByID[m.ChunkID]
		if ctxTokens+c.TokenCount > maxCtxTokens && len(assembled) > 0 {
			continue
		}
		seen[m.ChunkID] = true
		assembled = append(assembled, m)
		ctxTokens += c.TokenCount
	}

	return Response{Matches: assembled, CtxTokens: ctxTokens}, nil
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// snippet truncates text to maxChars, preferring to end at a sentence
// boundary (. ! ?) within the window so citations read naturally.
func snippet(text string, maxChars int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxChars {
		return trimmed
	}
	window := trimmed[:maxChars]
	if idx := lastSentenceBoundary(window); idx > 0 {
		return strings.TrimSpace(window[:idx+1])
	}
	return strings.TrimSpace(window) + "…"
}

func lastSentenceBoundary(s string) int {
	best := -1
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			best = i
		}
	}
	return best
}
