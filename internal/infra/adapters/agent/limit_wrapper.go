package agent

import (
	"context"

	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AgentAPI = (*limitedAgent)(nil)

// limitedAgent bounds the number of in-flight HTTP calls against the remote
// server, independently of how many review jobs run concurrently.
type limitedAgent struct {
	inner adapter.AgentAPI
	sem   chan struct{}
}

func NewLimitedAgent(inner adapter.AgentAPI, maxConcurrent int) adapter.AgentAPI {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAgent{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAgent) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAgent) Health(ctx context.Context) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-l.sem }()
	return l.inner.Health(ctx)
}

func (l *limitedAgent) StartSession(ctx context.Context, prompt string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer func() { <-l.sem }()
	return l.inner.StartSession(ctx, prompt)
}

func (l *limitedAgent) Status(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.SessionStatus{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.Status(ctx, sessionID)
}

func (l *limitedAgent) Messages(ctx context.Context, sessionID string, sinceOffset int) ([]model.Message, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-l.sem }()
	return l.inner.Messages(ctx, sessionID, sinceOffset)
}
