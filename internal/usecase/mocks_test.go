// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sync"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/adapter"
	"paper-review-batch/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// fakeAgent is a scriptable in-memory AgentAPI. Each behavior is a function
// field so a test can swap in exactly the failure it wants.
type fakeAgent struct {
	mu            sync.Mutex
	startCalls    int
	statusCalls   int
	messagesCalls int

	startFn    func(ctx context.Context, prompt string) (string, error)
	statusFn   func(ctx context.Context, sessionID string) (adapter.SessionStatus, error)
	messagesFn func(ctx context.Context, sessionID string, sinceOffset int) ([]model.Message, error)
}

func (f *fakeAgent) Health(ctx context.Context) error { return nil }

func (f *fakeAgent) StartSession(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.startCalls++
	n := f.startCalls
	f.mu.Unlock()
	if f.startFn != nil {
		return f.startFn(ctx, prompt)
	}
	return fmt.Sprintf("sess-%d", n), nil
}

func (f *fakeAgent) Status(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	if f.statusFn != nil {
		return f.statusFn(ctx, sessionID)
	}
	return adapter.SessionStatus{State: adapter.RemoteFinished}, nil
}

func (f *fakeAgent) Messages(ctx context.Context, sessionID string, sinceOffset int) ([]model.Message, error) {
	f.mu.Lock()
	f.messagesCalls++
	f.mu.Unlock()
	if f.messagesFn != nil {
		return f.messagesFn(ctx, sessionID, sinceOffset)
	}
	return nil, nil
}

// serveTranscript returns a messagesFn that pages the fixed transcript by
// offset, the way the real API does.
func serveTranscript(all []model.Message) func(context.Context, string, int) ([]model.Message, error) {
	return func(_ context.Context, _ string, sinceOffset int) ([]model.Message, error) {
		if sinceOffset >= len(all) {
			return nil, nil
		}
		return all[sinceOffset:], nil
	}
}

// memCheckpointRepo is a small in-memory checkpoint store used by unit tests.
type memCheckpointRepo struct {
	mu    sync.Mutex
	store map[string]*repository.Checkpoint
}

func newMemCheckpointRepo() *memCheckpointRepo {
	return &memCheckpointRepo{store: make(map[string]*repository.Checkpoint)}
}

func (m *memCheckpointRepo) Save(ctx context.Context, jobID string, cp *repository.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cp
	m.store[jobID] = &c
	return nil
}

func (m *memCheckpointRepo) Find(ctx context.Context, jobID string) (*repository.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.store[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *cp
	return &c, nil
}

func (m *memCheckpointRepo) Clear(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, jobID)
	return nil
}

// memSink records every outcome handed to it.
type memSink struct {
	mu     sync.Mutex
	writes []model.BatchOutcome
	err    error // returned from Write when set
}

func (m *memSink) Write(ctx context.Context, out *model.BatchOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes = append(m.writes, *out)
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// fakeRunner lets batch tests script per-job outcomes without a real
// session manager.
type fakeRunner struct {
	runFn func(ctx context.Context, job *model.ReviewJob) model.BatchOutcome
}

func (f *fakeRunner) Run(ctx context.Context, job *model.ReviewJob) model.BatchOutcome {
	if f.runFn != nil {
		return f.runFn(ctx, job)
	}
	return model.BatchOutcome{JobID: job.ID, Status: model.StatusSuccess, AttemptsUsed: 1}
}

// assessmentDoc renders a well-formed assessment with n items.
func assessmentDoc(title string, n int) string {
	doc := fmt.Sprintf("# Critical Assessment of %q\n\n", title)
	for i := 1; i <= n; i++ {
		doc += fmt.Sprintf("### Item %d: Weak point %d\n", i, i)
		doc += fmt.Sprintf("**Claim**: The paper overstates result %d.\n", i)
		doc += fmt.Sprintf("**Evidence**: Reproduction run %d diverged from table 2.\n", i)
		doc += "**Impact**: Undermines the main contribution.\n\n"
	}
	doc += "## References\n- Smith et al., 2021\n- Doe, 2023\n\n"
	doc += "## Conclusion\nThe paper needs major revision.\n"
	return doc
}

func transcriptWith(doc string) []model.Message {
	return []model.Message{
		{Role: "user", Content: "Please review the paper."},
		{Role: "assistant", Content: "Working on it."},
		{Role: "assistant", Content: doc},
	}
}
