package ai

import (
	"context"

	"video-pipeline/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

// NewLimitedAI caps concurrent Chat calls; maxConcurrent <= 0 disables the cap.
func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.ChatResponse{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, req)
}
