package llmprovider

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ragcore/internal/config"
)

const defaultAnthropicMaxTokens int64 = 1024

// anthropicClient wraps the official SDK for Messages, grounded on
// manifold's internal/llm/anthropic/client.go New/Chat/ChatStream, trimmed
// of tool use, extended-thinking, and prompt-cache control blocks — none
// of which spec.md's single-turn grounded-answer call exercises.
type anthropicClient struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

func newAnthropic(cfg config.LLMConfig) *anthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &anthropicClient{sdk: anthropic.NewClient(opts...), model: cfg.Model, maxTokens: maxTokens}
}

func (c *anthropicClient) params(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage))},
	}
}

func (c *anthropicClient) Generate(ctx context.Context, req Request) (string, Usage, error) {
	resp, err := c.sdk.Messages.New(ctx, c.params(req))
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	usage := Usage{
		InputTokens:  int(resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	return text.String(), usage, nil
}

func (c *anthropicClient) GenerateStream(ctx context.Context, req Request, h StreamHandler) (string, Usage, error) {
	stream := c.sdk.Messages.NewStreaming(ctx, c.params(req))
	defer func() { _ = stream.Close() }()

	var out strings.Builder
	var usage anthropic.MessageDeltaUsage
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				out.WriteString(delta.Text)
				if h != nil {
					h.OnDelta(delta.Text)
				}
			}
		case anthropic.MessageDeltaEvent:
			usage = ev.Usage
		}
	}
	if err := stream.Err(); err != nil {
		return out.String(), Usage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.String(), Usage{
		InputTokens:  int(usage.CacheCreationInputTokens + usage.CacheReadInputTokens + usage.InputTokens),
		OutputTokens: int(usage.OutputTokens),
	}, nil
}

var _ Provider = (*anthropicClient)(nil)
