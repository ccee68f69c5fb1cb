package usecase

import (
	"context"
	"sync"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/ports/repository"
)

var _ repository.CheckpointRepository = (*localCheckpoints)(nil)

// localCheckpoints keeps session checkpoints in process memory. It is the
// default store when no shared backend is configured, so a retry attempt
// can still resume the previous attempt's live remote session instead of
// starting a new one.
type localCheckpoints struct {
	mu    sync.Mutex
	store map[string]repository.Checkpoint
}

func newLocalCheckpoints() *localCheckpoints {
	return &localCheckpoints{store: make(map[string]repository.Checkpoint)}
}

func (l *localCheckpoints) Save(_ context.Context, jobID string, cp *repository.Checkpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store[jobID] = *cp
	return nil
}

func (l *localCheckpoints) Find(_ context.Context, jobID string) (*repository.Checkpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp, ok := l.store[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cp
	return &c, nil
}

func (l *localCheckpoints) Clear(_ context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.store, jobID)
	return nil
}
