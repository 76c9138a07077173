// Package answer implements the Answer Orchestrator (C11): it composes a
// grounded prompt from Retriever output, calls the configured LLM Provider
// either synchronously or as a stream, extracts citations, and fronts the
// whole call with a fingerprint-keyed cache. Grounded on the shape of
// manifold's generation-cache-plus-provider-call pipelines (workspaces'
// RedisGenerationCache for the caching half, internal/llm's Provider call
// sites for the generation half), recomposed around spec.md §4.11's
// single-call contract rather than manifold's multi-turn chat sessions.
package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ragcore/internal/config"
	"ragcore/internal/llmprovider"
	"ragcore/internal/retriever"
)

// ErrRetrievalUnavailable surfaces when the Retriever cannot produce
// context; per spec.md §4.11, the LLM is never called in this case.
var ErrRetrievalUnavailable = errors.New("answer: retrieval unavailable")

const systemInstructionTemplate = `You are a grounded question-answering assistant. Answer the user's question using ONLY the numbered context blocks below. Cite the blocks you use inline as [i] matching their number. If the context does not contain the answer, say you do not know rather than guessing.

%s`

// Request is one answer-generation call.
type Request struct {
	TenantID     string
	Query        string
	TopK         int
	Rerank       bool
	MaxCtxTokens int
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Response is the non-stream (and cache-hit) result shape.
type Response struct {
	Answer    string
	Citations []Match
	Usage     Usage
	Cached    bool
}

// StreamHandler receives incremental output from a streamed answer call.
// Exactly one of OnDone or OnError is called once, terminating the stream.
type StreamHandler interface {
	OnChunk(text string)
	OnDone(citations []Match, usage Usage)
	OnError(err error)
}

// Orchestrator wires the Retriever and LLM Provider together behind the
// answer cache.
type Orchestrator struct {
	retriever   *retriever.Retriever
	llm         llmprovider.Provider
	cache       Cache
	ttl         time.Duration
	model       string
	temperature float64
	maxTokens   int
}

func New(r *retriever.Retriever, llm llmprovider.Provider, cache Cache, cfg config.LLMConfig, ttl time.Duration) *Orchestrator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Orchestrator{
		retriever: r, llm: llm, cache: cache, ttl: ttl,
		model: cfg.Model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens,
	}
}

// withDefaults fills in any request field the caller left at its zero value
// with the configured default, so an unconfigured /answer body still uses
// the operator's chosen model, temperature, and max tokens.
func (o *Orchestrator) withDefaults(req Request) Request {
	if req.Model == "" {
		req.Model = o.model
	}
	if req.Temperature == 0 {
		req.Temperature = o.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = o.maxTokens
	}
	return req
}

func (o *Orchestrator) fingerprint(req Request, model string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(req.Query)), " ")
	raw := fmt.Sprintf("%s|%s|%d|%t|%d|%s", req.TenantID, normalized, req.TopK, req.Rerank, req.MaxCtxTokens, model)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (o *Orchestrator) retrieve(ctx context.Context, req Request) (retriever.Response, error) {
	resp, err := o.retriever.Retrieve(ctx, retriever.Request{
		TenantID:     req.TenantID,
		Query:        req.Query,
		TopK:         req.TopK,
		Rerank:       req.Rerank,
		MaxCtxTokens: req.MaxCtxTokens,
	})
	if err != nil {
		return retriever.Response{}, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	return resp, nil
}

func (o *Orchestrator) buildPrompt(matches []retriever.Match) string {
	if len(matches) == 0 {
		return fmt.Sprintf(systemInstructionTemplate, "(no context was retrieved for this query)")
	}
	var b strings.Builder
	for i, m := range matches {
		header := strings.Join(m.Breadcrumbs, " > ")
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, header, m.Snippet)
	}
	return fmt.Sprintf(systemInstructionTemplate, strings.TrimRight(b.String(), "\n"))
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations returns the Matches the model actually referenced, by
// [i] marker, de-duplicated and ordered by first occurrence; if the model
// produced no markers, every retrieved Match is returned per spec.md
// §4.11 step 6.
func extractCitations(answerText string, matches []retriever.Match) []Match {
	seen := make(map[int]bool)
	var out []Match
	for _, m := range citationMarker.FindAllStringSubmatch(answerText, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(matches) {
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, matches[idx-1])
	}
	if len(out) == 0 {
		return append([]Match(nil), matches...)
	}
	return out
}

// Answer runs a full non-streaming answer call.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Response, error) {
	req = o.withDefaults(req)
	fp := o.fingerprint(req, req.Model)

	if cached, ok, err := o.cache.Get(ctx, fp); err == nil && ok {
		return Response{Answer: cached.Answer, Citations: cached.Citations, Usage: cached.Usage, Cached: true}, nil
	}

	rr, err := o.retrieve(ctx, req)
	if err != nil {
		return Response{}, err
	}

	system := o.buildPrompt(rr.Matches)
	text, usage, err := o.llm.Generate(ctx, llmprovider.Request{
		System: system, UserMessage: req.Query, Model: req.Model,
		Temperature: req.Temperature, MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("answer: generate: %w", err)
	}

	citations := extractCitations(text, rr.Matches)
	resp := Response{Answer: text, Citations: citations, Usage: usage}
	_ = o.cache.Set(ctx, fp, Cached{Answer: text, Citations: citations, Usage: usage, CachedAt: time.Now()}, o.ttl)
	return resp, nil
}

type streamDelta struct{ h StreamHandler }

func (s streamDelta) OnDelta(text string) { s.h.OnChunk(text) }

// AnswerStream runs a streaming answer call, replaying a cache hit as a
// single chunk followed by done. On LLM failure mid-stream, OnError is
// called and the partial output is discarded rather than cached, per
// spec.md §4.11's failure semantics.
func (o *Orchestrator) AnswerStream(ctx context.Context, req Request, h StreamHandler) {
	req = o.withDefaults(req)
	fp := o.fingerprint(req, req.Model)

	if cached, ok, err := o.cache.Get(ctx, fp); err == nil && ok {
		h.OnChunk(cached.Answer)
		h.OnDone(cached.Citations, cached.Usage)
		return
	}

	rr, err := o.retrieve(ctx, req)
	if err != nil {
		h.OnError(err)
		return
	}

	system := o.buildPrompt(rr.Matches)
	text, usage, err := o.llm.GenerateStream(ctx, llmprovider.Request{
		System: system, UserMessage: req.Query, Model: req.Model,
		Temperature: req.Temperature, MaxTokens: req.MaxTokens,
	}, streamDelta{h: h})
	if err != nil {
		h.OnError(fmt.Errorf("answer: generate: %w", err))
		return
	}

	citations := extractCitations(text, rr.Matches)
	_ = o.cache.Set(ctx, fp, Cached{Answer: text, Citations: citations, Usage: usage, CachedAt: time.Now()}, o.ttl)
	h.OnDone(citations, usage)
}
