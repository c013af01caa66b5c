package ai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/ports/adapter"
	"hackathon-ai-jury/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to the Chat Completions API through the official
// SDK. Rate limits and 5xx responses are wrapped as transient so the
// worker's retry policy applies.
type OpenAIAdapter struct {
	client       openai.Client
	defaultModel string
}

func NewOpenAIAdapter(apiKey, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}, nil
}

// CountTokens counts prompt tokens locally with tiktoken; the API has no
// counting endpoint.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if model == "" {
		model = o.defaultModel
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, m := range messages {
		// Rough per-message framing overhead per the OpenAI cookbook.
		total += 4
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	text, _, err := o.ChatWithUsage(ctx, model, messages)
	return text, err
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if model == "" {
		model = o.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveAICall("openai", model, 0, 0, latency, false)
		return "", adapter.Usage{}, classifyOpenAIError(err)
	}

	usage := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveAICall("openai", model, usage.PromptTokens, usage.CompletionTokens, latency, true)

	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, usage, nil
		}
	}
	return "", usage, errors.New("openai: no choice content")
}

func toOpenAIMessages(messages []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classifyOpenAIError marks rate limits, server errors and transport
// failures as transient; 4xx responses stay fatal.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return domain.Transient(err)
		}
		return err
	}
	// No structured API error means the request never completed.
	return domain.Transient(err)
}
