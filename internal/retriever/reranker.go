package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragcore/internal/config"
)

// NewReranker selects the configured Reranker: a NoopReranker when
// reranking is disabled, or an HTTP cross-encoder client otherwise. This
// mirrors manifold's retrieve.Reranker interface shape (NoopReranker as the
// default, a real implementation swapped in behind it) but targets a plain
// HTTP scoring endpoint since no cross-encoder client ships in the pack.
func NewReranker(cfg config.RerankConfig) Reranker {
	if !cfg.Enabled || cfg.URL == "" {
		return NoopReranker{}
	}
	return &httpReranker{
		url:   cfg.URL,
		token: cfg.Token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type httpReranker struct {
	url    string
	token  string
	client *http.Client
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (h *httpReranker) Rerank(ctx context.Context, query string, matches []Match) ([]Match, error) {
	if len(matches) == 0 {
		return matches, nil
	}
	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Snippet
	}
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("retriever: encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retriever: build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retriever: rerank request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retriever: rerank endpoint returned %d", resp.StatusCode)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("retriever: decode rerank response: %w", err)
	}
	if len(out.Scores) != len(matches) {
		return nil, fmt.Errorf("retriever: rerank returned %d scores for %d documents", len(out.Scores), len(matches))
	}

	reranked := make([]Match, len(matches))
	copy(reranked, matches)
	for i := range reranked {
		reranked[i].Score = out.Scores[i]
	}
	return reranked, nil
}
