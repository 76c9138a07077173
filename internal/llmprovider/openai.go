package llmprovider

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragcore/internal/config"
)

// openAIClient wraps the official SDK for Chat Completions, grounded on
// manifold's internal/llm/openai/client.go New/Chat/ChatStream, trimmed of
// tool calling, image generation, Gemini raw-HTTP fallbacks, and
// self-hosted tokenizer probing — none of which spec.md's Answer
// Orchestrator exercises.
type openAIClient struct {
	sdk     sdk.Client
	model   string
	timeout time.Duration
}

func newOpenAI(cfg config.LLMConfig) *openAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIClient{sdk: sdk.NewClient(opts...), model: cfg.Model, timeout: cfg.Timeout}
}

func (c *openAIClient) params(req Request) sdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(req.System),
			sdk.UserMessage(req.UserMessage),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	return params
}

func (c *openAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *openAIClient) Generate(ctx context.Context, req Request) (string, Usage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	comp, err := c.sdk.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(comp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	usage := Usage{InputTokens: int(comp.Usage.PromptTokens), OutputTokens: int(comp.Usage.CompletionTokens)}
	return comp.Choices[0].Message.Content, usage, nil
}

func (c *openAIClient) GenerateStream(ctx context.Context, req Request, h StreamHandler) (string, Usage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := c.params(req)
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var out strings.Builder
	var usage Usage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.JSON.Usage.Valid() && chunk.JSON.Usage.Raw() != "null" {
			usage = Usage{InputTokens: int(chunk.Usage.PromptTokens), OutputTokens: int(chunk.Usage.CompletionTokens)}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if h != nil {
			h.OnDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return out.String(), usage, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.String(), usage, nil
}

var _ Provider = (*openAIClient)(nil)
