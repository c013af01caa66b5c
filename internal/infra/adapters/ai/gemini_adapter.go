package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/ports/adapter"
	"hackathon-ai-jury/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	contents := toGenAIHistory(messages)
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(model, g.defaultModel), contents, nil)
	if err != nil {
		return 0, classifyGeminiError(err)
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	text, _, err := g.ChatWithUsage(ctx, model, messages)
	return text, err
}

func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("gemini: no messages")
	}
	name := modelOrDefault(model, g.defaultModel)
	history := toGenAIHistory(messages[:len(messages)-1])

	start := time.Now()
	chat, err := g.client.Chats.Create(ctx, name, &genai.GenerateContentConfig{}, history)
	if err != nil {
		metrics.ObserveAICall("gemini", name, 0, 0, int(time.Since(start).Milliseconds()), false)
		return "", adapter.Usage{}, classifyGeminiError(err)
	}

	last := messages[len(messages)-1]
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveAICall("gemini", name, 0, 0, latency, false)
		return "", adapter.Usage{}, classifyGeminiError(err)
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}
	u := adapter.Usage{}
	if resp != nil && resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	metrics.ObserveAICall("gemini", name, u.PromptTokens, u.CompletionTokens, latency, true)
	return text, u, nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		case "system":
			// Gemini has no system role in chat history; deliver the
			// instruction as a leading user turn.
			role = genai.RoleUser
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return domain.Transient(err)
		}
		return err
	}
	return domain.Transient(err)
}
