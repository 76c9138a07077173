package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ragcore/internal/config"
)

type recordingHandler struct {
	deltas []string
}

func (r *recordingHandler) OnDelta(text string) { r.deltas = append(r.deltas, text) }

func TestNewSelectsOpenAIByDefaultAndByName(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: ""})
	require.NoError(t, err)
	require.IsType(t, &openAIClient{}, p)

	p, err = New(config.LLMConfig{Provider: "openai"})
	require.NoError(t, err)
	require.IsType(t, &openAIClient{}, p)
}

func TestNewSelectsAnthropic(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "anthropic"})
	require.NoError(t, err)
	require.IsType(t, &anthropicClient{}, p)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "llama"})
	require.Error(t, err)
}

func TestOpenAIGenerateReturnsTextAndUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"the answer"}}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	}))
	defer ts.Close()

	p := newOpenAI(config.LLMConfig{APIKey: "k", BaseURL: ts.URL, Model: "gpt-4o-mini"})
	text, usage, err := p.Generate(context.Background(), Request{System: "ground your answer", UserMessage: "what is it?"})
	require.NoError(t, err)
	require.Equal(t, "the answer", text)
	require.Equal(t, Usage{InputTokens: 12, OutputTokens: 3}, usage)
}

func TestOpenAIGenerateSurfacesErrUnavailableOnEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[],"usage":{"prompt_tokens":1,"completion_tokens":0,"total_tokens":1}}`))
	}))
	defer ts.Close()

	p := newOpenAI(config.LLMConfig{APIKey: "k", BaseURL: ts.URL})
	_, _, err := p.Generate(context.Background(), Request{UserMessage: "hi"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIGenerateSurfacesErrUnavailableOnServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := newOpenAI(config.LLMConfig{APIKey: "k", BaseURL: ts.URL})
	_, _, err := p.Generate(context.Background(), Request{UserMessage: "hi"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIGenerateStreamAccumulatesDeltasAndUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"hello"},"finish_reason":null}]}`+"\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":" world"},"finish_reason":null}]}`+"\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, `data: {"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	p := newOpenAI(config.LLMConfig{APIKey: "k", BaseURL: ts.URL})
	h := &recordingHandler{}
	text, usage, err := p.GenerateStream(context.Background(), Request{UserMessage: "hi"}, h)
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, []string{"hello", " world"}, h.deltas)
	require.Equal(t, Usage{InputTokens: 4, OutputTokens: 2}, usage)
}

func TestAnthropicGenerateReturnsTextAndUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-7-sonnet-latest","content":[{"type":"text","text":"grounded answer"}],"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":7,"cache_creation_input_tokens":0,"cache_read_input_tokens":0}}`))
	}))
	defer ts.Close()

	p := newAnthropic(config.LLMConfig{APIKey: "k", BaseURL: ts.URL, Model: "claude-3-7-sonnet-latest"})
	text, usage, err := p.Generate(context.Background(), Request{System: "ground your answer", UserMessage: "what is it?"})
	require.NoError(t, err)
	require.Equal(t, "grounded answer", text)
	require.Equal(t, Usage{InputTokens: 20, OutputTokens: 7}, usage)
}

func TestAnthropicGenerateSurfacesErrUnavailableOnServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := newAnthropic(config.LLMConfig{APIKey: "k", BaseURL: ts.URL})
	_, _, err := p.Generate(context.Background(), Request{UserMessage: "hi"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func writeAnthropicEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, payload map[string]any) {
	if _, ok := payload["type"]; !ok {
		payload["type"] = eventType
	}
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", b)
	if flusher != nil {
		flusher.Flush()
	}
}

func TestAnthropicGenerateStreamAccumulatesDeltasAndUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)

		writeAnthropicEvent(w, flusher, "message_start", map[string]any{
			"message": map[string]any{
				"id": "msg_1", "type": "message", "role": "assistant",
				"model": "claude-3-7-sonnet-latest", "content": []any{},
				"stop_reason": nil,
				"usage": map[string]any{
					"input_tokens": 0, "output_tokens": 0,
					"cache_creation_input_tokens": 0, "cache_read_input_tokens": 0,
				},
			},
		})
		writeAnthropicEvent(w, flusher, "content_block_start", map[string]any{
			"index":         0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		writeAnthropicEvent(w, flusher, "content_block_delta", map[string]any{
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": "hello"},
		})
		writeAnthropicEvent(w, flusher, "content_block_delta", map[string]any{
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": " world"},
		})
		writeAnthropicEvent(w, flusher, "message_delta", map[string]any{
			"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			"usage": map[string]any{
				"input_tokens": 9, "output_tokens": 4,
				"cache_creation_input_tokens": 0, "cache_read_input_tokens": 0,
			},
		})
	}))
	defer ts.Close()

	p := newAnthropic(config.LLMConfig{APIKey: "k", BaseURL: ts.URL, Model: "claude-3-7-sonnet-latest"})
	h := &recordingHandler{}
	text, usage, err := p.GenerateStream(context.Background(), Request{UserMessage: "hi"}, h)
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, []string{"hello", " world"}, h.deltas)
	require.Equal(t, Usage{InputTokens: 9, OutputTokens: 4}, usage)
}

func TestRequestModelOverridesConfiguredDefault(t *testing.T) {
	var gotModel string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"model":"gpt-4-turbo"`) {
			gotModel = "gpt-4-turbo"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer ts.Close()

	p := newOpenAI(config.LLMConfig{APIKey: "k", BaseURL: ts.URL, Model: "gpt-4o-mini"})
	_, _, err := p.Generate(context.Background(), Request{UserMessage: "hi", Model: "gpt-4-turbo"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4-turbo", gotModel)
}
