package ai

import (
	"context"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI caps in-flight provider calls with a semaphore so a large
// elimination session cannot stampede the AI provider.
type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if err := l.acquire(ctx); err != nil {
		return 0, err
	}
	defer func() { <-l.sem }()
	return l.inner.CountTokens(ctx, model, messages)
}

func (l *limitedAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, model, messages)
}

func (l *limitedAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := l.acquire(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.ChatWithUsage(ctx, model, messages)
}
