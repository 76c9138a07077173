package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ragcore/internal/config"
)

// RemoteEmbedder calls an HTTP embedding endpoint (an OpenAI-compatible
// /embeddings route, or a local inference server exposing the same shape),
// retrying transient failures with exponential backoff before giving up
// with ErrUnavailable. Grounded on manifold's internal/embedding.EmbedText
// request/response shape; the retry loop is new, using
// github.com/cenkalti/backoff/v5 (already pulled in transitively by the
// pack's Redis/Kafka clients) instead of the teacher's no-retry single
// attempt.
type RemoteEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

func NewRemote(cfg config.EmbeddingConfig) *RemoteEmbedder {
	return &RemoteEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *RemoteEmbedder) ProviderTag() string { return "remote:" + r.cfg.Provider }
func (r *RemoteEmbedder) Dimension() int      { return r.cfg.Dimension }

func (r *RemoteEmbedder) Ping(ctx context.Context) error {
	_, err := r.embedOnce(ctx, []string{"ping"})
	return err
}

func (r *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out [][]float32
	for _, batch := range batched(texts, r.cfg.BatchSize) {
		vectors, err := backoff.Retry(ctx, func() ([][]float32, error) {
			return r.embedOnce(ctx, batch)
		}, backoff.WithMaxTries(5), backoff.WithBackOff(backoff.NewExponentialBackOff()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, v := range vectors {
			normalizeL2(v)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (r *RemoteEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Input: texts})
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.RemoteURL, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.RemoteKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.RemoteKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err // network errors are retryable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("embedding endpoint %s: %s", resp.Status, string(raw))
	}
	if resp.StatusCode/100 != 2 {
		return nil, backoff.Permanent(fmt.Errorf("embedding endpoint %s: %s", resp.Status, string(raw)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse embedding response: %w", err))
	}
	if len(parsed.Data) != len(texts) {
		return nil, backoff.Permanent(fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Data), len(texts)))
	}

	out := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		out[i] = parsed.Data[i].Embedding
	}
	return out, nil
}
