// File: internal/usecase/session_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/adapter"
	"paper-review-batch/internal/domain/ports/repository"
)

func fastPolicy() SessionPolicy {
	return SessionPolicy{
		PollInterval:   time.Millisecond,
		CallRetryLimit: 0,
		BackoffBase:    time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
}

func testJob(id string) *model.ReviewJob {
	return &model.ReviewJob{
		ID:               id,
		PaperData:        map[string]any{"title": "Test Paper"},
		MaxCriticalItems: 10,
		Timeout:          5 * time.Second,
		MaxRetries:       2,
	}
}

func TestRunHappyPath(t *testing.T) {
	agent := &fakeAgent{
		messagesFn: serveTranscript(transcriptWith(assessmentDoc("Test Paper", 2))),
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-1"))
	if out.Status != model.StatusSuccess {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.AttemptsUsed != 1 {
		t.Errorf("attempts = %d, want 1", out.AttemptsUsed)
	}
	if out.Report == nil || len(out.Report.Items) != 2 {
		t.Errorf("report = %+v", out.Report)
	}
	if out.Session == nil || out.Session.State != model.SessionCompleted {
		t.Errorf("session = %+v", out.Session)
	}
	if len(out.Session.Messages) != 3 {
		t.Errorf("transcript = %d messages", len(out.Session.Messages))
	}
}

// Two transient submission failures followed by a success must consume
// three attempts in total.
func TestRunRetriesTransientSubmissionFailures(t *testing.T) {
	agent := &fakeAgent{
		messagesFn: serveTranscript(transcriptWith(assessmentDoc("Test Paper", 1))),
	}
	agent.startFn = func(ctx context.Context, prompt string) (string, error) {
		agent.mu.Lock()
		n := agent.startCalls
		agent.mu.Unlock()
		if n <= 2 {
			return "", &domain.APIError{StatusCode: 503, Message: "backend starting"}
		}
		return "sess-ok", nil
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-retry"))
	if out.Status != model.StatusSuccess {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.AttemptsUsed != 3 {
		t.Errorf("attempts = %d, want 3", out.AttemptsUsed)
	}
}

func TestRunPermanentSubmissionFailure(t *testing.T) {
	agent := &fakeAgent{
		startFn: func(ctx context.Context, prompt string) (string, error) {
			return "", &domain.APIError{StatusCode: 401, Message: "bad key"}
		},
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-perm"))
	if out.Status != model.StatusFailed {
		t.Fatalf("status = %s", out.Status)
	}
	if out.AttemptsUsed != 1 {
		t.Errorf("attempts = %d, want 1: a 4xx must not be retried", out.AttemptsUsed)
	}
	var apiErr *domain.APIError
	if !errors.As(out.Err, &apiErr) || apiErr.StatusCode != 401 {
		t.Errorf("err = %v", out.Err)
	}
}

func TestRunTimeoutKeepsPartialTranscript(t *testing.T) {
	partial := []model.Message{
		{Role: "user", Content: "Please review the paper."},
		{Role: "assistant", Content: "Cloning the repository now."},
	}
	agent := &fakeAgent{
		statusFn: func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
			return adapter.SessionStatus{State: adapter.RemoteRunning}, nil
		},
		messagesFn: serveTranscript(partial),
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	job := testJob("job-slow")
	job.Timeout = 50 * time.Millisecond
	job.MaxRetries = 0

	out := m.Run(context.Background(), job)
	if out.Status != model.StatusTimedOut {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if !errors.Is(out.Err, domain.ErrSessionTimeout) {
		t.Errorf("err = %v", out.Err)
	}
	if out.Session.State != model.SessionTimedOut {
		t.Errorf("session state = %s", out.Session.State)
	}
	if len(out.Session.Messages) != len(partial) {
		t.Errorf("partial transcript = %d messages, want %d", len(out.Session.Messages), len(partial))
	}
}

func TestRunTimeoutRetriesThenGivesUp(t *testing.T) {
	agent := &fakeAgent{
		statusFn: func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
			return adapter.SessionStatus{State: adapter.RemoteRunning}, nil
		},
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	job := testJob("job-slow2")
	job.Timeout = 30 * time.Millisecond
	job.MaxRetries = 1

	out := m.Run(context.Background(), job)
	if out.Status != model.StatusTimedOut {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.AttemptsUsed != 2 {
		t.Errorf("attempts = %d, want 2", out.AttemptsUsed)
	}
}

func TestRunRemoteErrorRetries(t *testing.T) {
	agent := &fakeAgent{}
	agent.statusFn = func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
		agent.mu.Lock()
		n := agent.statusCalls
		agent.mu.Unlock()
		if n == 1 {
			return adapter.SessionStatus{State: adapter.RemoteError, Err: "runtime crashed"}, nil
		}
		return adapter.SessionStatus{State: adapter.RemoteFinished}, nil
	}
	agent.messagesFn = serveTranscript(transcriptWith(assessmentDoc("Test Paper", 1)))
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-crash"))
	if out.Status != model.StatusSuccess {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.AttemptsUsed != 2 {
		t.Errorf("attempts = %d, want 2", out.AttemptsUsed)
	}
}

// An extraction defect is deterministic: the session finished, so retrying
// the whole job would only reproduce the same malformed transcript.
func TestRunExtractionFailureNotRetried(t *testing.T) {
	agent := &fakeAgent{
		messagesFn: serveTranscript([]model.Message{
			{Role: "assistant", Content: "Done, but I wrote no assessment."},
		}),
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-bad-doc"))
	if out.Status != model.StatusInvalid {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.AttemptsUsed != 1 {
		t.Errorf("attempts = %d, want 1", out.AttemptsUsed)
	}
	var exErr *domain.ExtractionError
	if !errors.As(out.Err, &exErr) || exErr.Kind != domain.ExtractNoAssessment {
		t.Errorf("err = %v", out.Err)
	}
}

func TestRunCancelledBeforePolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agent := &fakeAgent{
		startFn: func(ctx context.Context, prompt string) (string, error) {
			cancel()
			return "", ctx.Err()
		},
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(ctx, testJob("job-cancel"))
	if out.Status != model.StatusFailed {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if !errors.Is(out.Err, domain.ErrCancelled) {
		t.Errorf("err = %v", out.Err)
	}
}

func TestRunCancelledWhilePolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agent := &fakeAgent{
		statusFn: func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
			cancel()
			return adapter.SessionStatus{}, ctx.Err()
		},
		messagesFn: serveTranscript([]model.Message{
			{Role: "assistant", Content: "halfway through"},
		}),
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(ctx, testJob("job-cancel-poll"))
	if out.Status != model.StatusTimedOut {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.Session.State != model.SessionTimedOut {
		t.Errorf("session state = %s", out.Session.State)
	}
	if len(out.Session.Messages) == 0 {
		t.Error("expected the partial transcript to be captured")
	}
}

func TestRunResumesCheckpointedSession(t *testing.T) {
	checkpoints := newMemCheckpointRepo()
	_ = checkpoints.Save(context.Background(), "job-resume", &repository.Checkpoint{
		SessionID: "sess-live", Offset: 0, Attempt: 1,
	})
	agent := &fakeAgent{
		messagesFn: serveTranscript(transcriptWith(assessmentDoc("Test Paper", 1))),
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), checkpoints, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-resume"))
	if out.Status != model.StatusSuccess {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if agent.startCalls != 0 {
		t.Errorf("startCalls = %d, want 0: the live session should be resumed", agent.startCalls)
	}
	if out.Session.ID != "sess-live" {
		t.Errorf("session id = %q", out.Session.ID)
	}
	if _, err := checkpoints.Find(context.Background(), "job-resume"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("checkpoint not cleared after success: %v", err)
	}
}

func TestRunClearsDeadCheckpoint(t *testing.T) {
	checkpoints := newMemCheckpointRepo()
	_ = checkpoints.Save(context.Background(), "job-dead", &repository.Checkpoint{
		SessionID: "sess-dead", Offset: 3, Attempt: 1,
	})
	agent := &fakeAgent{}
	agent.statusFn = func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
		if sessionID == "sess-dead" {
			return adapter.SessionStatus{State: adapter.RemoteError, Err: "gone"}, nil
		}
		return adapter.SessionStatus{State: adapter.RemoteFinished}, nil
	}
	agent.messagesFn = serveTranscript(transcriptWith(assessmentDoc("Test Paper", 1)))
	m := NewSessionManager(agent, NewPromptBuilder(0), checkpoints, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-dead"))
	if out.Status != model.StatusSuccess {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if agent.startCalls != 1 {
		t.Errorf("startCalls = %d, want 1: dead checkpoint must force a fresh session", agent.startCalls)
	}
}

// Without a shared checkpoint backend the manager still must not orphan a
// live session: a retry after a transient poll failure reattaches to the
// session started by the previous attempt instead of opening a new one.
func TestRunResumesAfterTransientPollFailure(t *testing.T) {
	agent := &fakeAgent{}
	agent.statusFn = func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
		agent.mu.Lock()
		n := agent.statusCalls
		agent.mu.Unlock()
		if n == 1 {
			return adapter.SessionStatus{}, &domain.APIError{StatusCode: 503, Message: "bad gateway"}
		}
		return adapter.SessionStatus{State: adapter.RemoteFinished}, nil
	}
	agent.messagesFn = serveTranscript(transcriptWith(assessmentDoc("Test Paper", 1)))
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-blip"))
	if out.Status != model.StatusSuccess {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.AttemptsUsed != 2 {
		t.Errorf("attempts = %d, want 2", out.AttemptsUsed)
	}
	if agent.startCalls != 1 {
		t.Errorf("startCalls = %d, want 1: retry should reuse the running session", agent.startCalls)
	}
}

func TestCallWithRetryRespectsLimit(t *testing.T) {
	agent := &fakeAgent{}
	agent.statusFn = func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
		return adapter.SessionStatus{}, &domain.APIError{StatusCode: 500, Message: "boom"}
	}
	policy := fastPolicy()
	policy.CallRetryLimit = 2
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, policy, testLogger())

	job := testJob("job-calls")
	job.MaxRetries = 0
	out := m.Run(context.Background(), job)
	if out.Status != model.StatusFailed {
		t.Fatalf("status = %s", out.Status)
	}
	// One initial call plus two in-place retries.
	if agent.statusCalls != 3 {
		t.Errorf("statusCalls = %d, want 3", agent.statusCalls)
	}
}

// The transcript arrives one message per poll; the final transcript must be
// complete and free of duplicates.
func TestRunAccumulatesTranscriptIncrementally(t *testing.T) {
	full := transcriptWith(assessmentDoc("Test Paper", 1))
	agent := &fakeAgent{}
	agent.statusFn = func(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
		agent.mu.Lock()
		n := agent.statusCalls
		agent.mu.Unlock()
		if n < len(full) {
			return adapter.SessionStatus{State: adapter.RemoteRunning}, nil
		}
		return adapter.SessionStatus{State: adapter.RemoteFinished}, nil
	}
	agent.messagesFn = func(ctx context.Context, sessionID string, sinceOffset int) ([]model.Message, error) {
		agent.mu.Lock()
		avail := agent.messagesCalls
		agent.mu.Unlock()
		if avail > len(full) {
			avail = len(full)
		}
		if sinceOffset >= avail {
			return nil, nil
		}
		return full[sinceOffset:avail], nil
	}
	m := NewSessionManager(agent, NewPromptBuilder(0), nil, fastPolicy(), testLogger())

	out := m.Run(context.Background(), testJob("job-pages"))
	if out.Status != model.StatusSuccess {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if len(out.Session.Messages) != len(full) {
		t.Errorf("transcript = %d messages, want %d", len(out.Session.Messages), len(full))
	}
	for i, msg := range out.Session.Messages {
		if msg.Content != full[i].Content {
			t.Errorf("message %d out of order", i)
		}
	}
}
