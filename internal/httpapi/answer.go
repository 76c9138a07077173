package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ragcore/internal/answer"
	"ragcore/internal/platform/logging"
)

type answerRequest struct {
	Query       string  `json:"query"`
	TopK        int     `json:"top_k"`
	Rerank      bool    `json:"rerank"`
	MaxCtx      int     `json:"max_ctx"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

func (req answerRequest) toOrchestratorRequest(tenantID string) answer.Request {
	return answer.Request{TenantID: tenantID, Query: req.Query, TopK: req.TopK, Rerank: req.Rerank, MaxCtxTokens: req.MaxCtx, Model: req.Model, Temperature: req.Temperature, MaxTokens: req.MaxTokens}
}

type answerResponsePayload struct {
	Answer    string         `json:"answer"`
	Citations []matchPayload `json:"citations"`
	Usage     answer.Usage   `json:"usage"`
	Cached    bool           `json:"cached"`
}

// handleAnswer implements POST /answer: retrieval plus one grounded LLM
// generation, consuming the caller's daily token quota once usage is known.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, errMissingQuery)
		return
	}
	tenantID, _ := tenantFromContext(ctx)

	resp, err := s.orch.Answer(ctx, req.toOrchestratorRequest(tenantID))
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if !resp.Cached {
		if err := s.limiter.ConsumeTokens(ctx, tenantID, resp.Usage.InputTokens+resp.Usage.OutputTokens); err != nil {
			respondError(w, http.StatusTooManyRequests, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, answerResponsePayload{
		Answer: resp.Answer, Citations: toMatchPayloads(resp.Citations), Usage: resp.Usage, Cached: resp.Cached,
	})
}

// sseStreamHandler adapts answer.StreamHandler to Server-Sent Events per
// spec.md §4.11's streaming termination invariant: exactly one terminal
// frame, "done" or "error", ends every stream.
type sseStreamHandler struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (h sseStreamHandler) writeEvent(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(h.w, "event: %s\n", event)
	fmt.Fprintf(h.w, "data: %s\n\n", data)
	if h.flusher != nil {
		h.flusher.Flush()
	}
}

func (h sseStreamHandler) OnChunk(text string) {
	h.writeEvent("chunk", map[string]string{"text": text})
}

func (h sseStreamHandler) OnDone(citations []answer.Match, usage answer.Usage) {
	h.writeEvent("done", map[string]any{"citations": toMatchPayloads(citations), "usage": usage})
}

func (h sseStreamHandler) OnError(err error) {
	h.writeEvent("error", map[string]string{"error": err.Error()})
}

// handleAnswerStream implements POST /answer/stream. The daily token quota
// is consumed after the stream's terminal "done" event, once real usage is
// known; a mid-stream failure never reaches ConsumeTokens, matching the
// orchestrator's own no-cache-on-failure rule.
func (s *Server) handleAnswerStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, errMissingQuery)
		return
	}
	tenantID, _ := tenantFromContext(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	log := logging.FromContext(ctx)
	handler := sseStreamHandler{w: w, flusher: flusher}
	s.orch.AnswerStream(ctx, req.toOrchestratorRequest(tenantID), streamQuotaHandler{
		inner: handler,
		onDone: func(usage answer.Usage) {
			if err := s.limiter.ConsumeTokens(ctx, tenantID, usage.InputTokens+usage.OutputTokens); err != nil {
				log.Warn().Err(err).Str("tenant_id", tenantID).Msg("answer stream exceeded daily token quota")
			}
		},
	})
}

// streamQuotaHandler wraps an answer.StreamHandler to run a side effect
// exactly once, after a successful terminal "done", without the
// orchestrator itself needing to know about quota accounting.
type streamQuotaHandler struct {
	inner  answer.StreamHandler
	onDone func(answer.Usage)
}

func (h streamQuotaHandler) OnChunk(text string) { h.inner.OnChunk(text) }
func (h streamQuotaHandler) OnDone(citations []answer.Match, usage answer.Usage) {
	h.onDone(usage)
	h.inner.OnDone(citations, usage)
}
func (h streamQuotaHandler) OnError(err error) { h.inner.OnError(err) }
