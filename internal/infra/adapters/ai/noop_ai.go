package ai

import (
	"context"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter stands in for a real provider in local development. It
// answers every prompt with a fixed passing verdict so the pipeline can
// be exercised end to end without API keys.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter { return &NoopAIAdapter{} }

const noopReply = `{"eligible": true, "score": 7.0, "technologies": ["go"], "findings": [], "summary": "noop verdict"}`

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	return noopReply, nil
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	return noopReply, adapter.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}, nil
}
