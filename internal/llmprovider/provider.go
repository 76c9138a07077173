// Package llmprovider implements the pluggable LLM backend the Answer
// Orchestrator (C11) calls to generate grounded answers. Grounded on
// manifold's internal/llm package family (provider.go's Provider
// interface, openai/client.go and anthropic/client.go's SDK wrapping),
// generalized down to this system's single-turn, tool-free chat contract:
// spec.md §4.11 never calls a tool or carries multi-turn history into the
// LLM — every call is one system instruction plus one user prompt built
// fresh from retrieved context.
package llmprovider

import (
	"context"
	"errors"
	"fmt"

	"ragcore/internal/config"
)

// ErrUnavailable covers any provider-side failure: network error, non-2xx
// response, or a canceled/expired context mid-call.
var ErrUnavailable = errors.New("llmprovider: provider unavailable")

// Usage reports token accounting for one completion, recorded by the
// Answer Orchestrator per spec.md §4.11 step 7.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Request is one answer-generation call: a system instruction (the
// grounding/refusal rule plus numbered context blocks) and the user's
// query as the final turn.
type Request struct {
	System      string
	UserMessage string
	Model       string
	Temperature float64
	MaxTokens   int
}

// StreamHandler receives incremental output as it streams from the
// provider. OnDelta is called once per text chunk; the end of the stream
// is signalled by GenerateStream returning, not through the handler.
type StreamHandler interface {
	OnDelta(text string)
}

// Provider is the capability contract every backend implements.
type Provider interface {
	// Generate runs req to completion and returns the full answer text.
	Generate(ctx context.Context, req Request) (text string, usage Usage, err error)
	// GenerateStream runs req, calling h.OnDelta as tokens arrive, and
	// returns the full accumulated text and usage once the stream ends.
	GenerateStream(ctx context.Context, req Request, h StreamHandler) (text string, usage Usage, err error)
}

// New constructs the configured Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return newOpenAI(cfg), nil
	case "anthropic":
		return newAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("llmprovider: unknown provider %q", cfg.Provider)
	}
}
