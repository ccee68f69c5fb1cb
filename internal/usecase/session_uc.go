package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/adapter"
	"paper-review-batch/internal/domain/ports/repository"
	"paper-review-batch/internal/infra/logging"
	"paper-review-batch/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// SessionPolicy bounds how one session manager talks to the remote API.
type SessionPolicy struct {
	PollInterval   time.Duration
	CallRetryLimit int // consecutive in-place retries of one poll call
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

func (p *SessionPolicy) normalize() {
	if p.PollInterval <= 0 {
		p.PollInterval = 5 * time.Second
	}
	if p.CallRetryLimit < 0 {
		p.CallRetryLimit = 0
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = time.Minute
	}
}

// SessionManager drives one review job to a terminal outcome: submit the
// session, poll it, enforce the job's wall-clock deadline, retry transient
// failures, and hand the finished transcript to the extractor. Failures are
// always captured into the returned outcome, never raised past Run.
type SessionManager struct {
	api         adapter.AgentAPI
	prompts     *PromptBuilder
	checkpoints repository.CheckpointRepository
	policy      SessionPolicy
	log         *zerolog.Logger
}

func NewSessionManager(
	api adapter.AgentAPI,
	prompts *PromptBuilder,
	checkpoints repository.CheckpointRepository,
	policy SessionPolicy,
	logger *zerolog.Logger,
) *SessionManager {
	policy.normalize()
	if checkpoints == nil {
		// A retry must still be able to resume the previous attempt's live
		// session, so an in-process store backs the loop when no shared
		// backend is configured.
		checkpoints = newLocalCheckpoints()
	}
	l := logger.With().Str("component", "SessionManager").Logger()
	return &SessionManager{
		api:         api,
		prompts:     prompts,
		checkpoints: checkpoints,
		policy:      policy,
		log:         &l,
	}
}

// Run executes the job's full retry loop. The returned outcome always has a
// terminal status; the session it carries holds whatever transcript was
// observed, including partial transcripts on timeout.
func (m *SessionManager) Run(ctx context.Context, job *model.ReviewJob) (out model.BatchOutcome) {
	job.Normalize()
	out = model.BatchOutcome{JobID: job.ID, Status: model.StatusFailed}
	defer func() {
		if r := recover(); r != nil {
			out.Status = model.StatusFailed
			out.Err = fmt.Errorf("session manager panic: %v", r)
		}
		metrics.IncSessionFinished(string(out.Status))
	}()

	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, m.log)

	prompt, err := m.prompts.Build(job.PaperData, job.MaxCriticalItems)
	if err != nil {
		out.Err = err
		return out
	}

	maxAttempts := job.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sess := model.NewSession(job.ID, attempt)
		out.AttemptsUsed = attempt
		out.Session = sess
		metrics.IncSessionAttempt()
		log.Info().Int("attempt", attempt).Str("paper", job.Title()).Msg("starting session attempt")

		rep, err := m.runAttempt(ctx, job, sess, prompt)
		if err == nil {
			out.Status = model.StatusSuccess
			out.Report = rep
			out.Err = nil
			m.clearCheckpoint(job.ID)
			log.Info().Int("attempt", attempt).Int("items", len(rep.Items)).Msg("review completed")
			return out
		}
		out.Err = err

		var exErr *domain.ExtractionError
		if errors.As(err, &exErr) {
			// Deterministic parsing defect: retrying would re-run the
			// remote agent for the same result.
			out.Status = model.StatusInvalid
			metrics.IncExtractionFailure(string(exErr.Kind))
			log.Error().Err(err).Msg("transcript extraction failed")
			return out
		}
		if ctx.Err() != nil {
			if sess.State == model.SessionTimedOut {
				out.Status = model.StatusTimedOut
			} else {
				out.Status = model.StatusFailed
			}
			log.Warn().Err(err).Msg("job abandoned by cancellation")
			return out
		}

		retryable := errors.Is(err, domain.ErrSessionTimeout) ||
			errors.Is(err, domain.ErrSessionFailed) ||
			domain.IsRetryable(err)
		if !retryable {
			out.Status = model.StatusFailed
			log.Error().Err(err).Int("attempt", attempt).Msg("session failed")
			return out
		}
		if attempt == maxAttempts {
			if errors.Is(err, domain.ErrSessionTimeout) {
				out.Status = model.StatusTimedOut
			} else {
				out.Status = model.StatusFailed
			}
			log.Error().Err(err).Int("attempts", attempt).Msg("retries exhausted")
			return out
		}

		log.Warn().Err(err).Int("attempt", attempt).Msg("attempt failed, backing off")
		if berr := m.backoff(ctx, attempt); berr != nil {
			out.Status = model.StatusFailed
			out.Err = fmt.Errorf("%w during backoff: %v", domain.ErrCancelled, err)
			return out
		}
	}
	return out
}

// runAttempt drives one session from submission to a terminal state under
// the job's deadline.
func (m *SessionManager) runAttempt(ctx context.Context, job *model.ReviewJob, sess *model.Session, prompt string) (*model.CriticalAssessmentReport, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	if !m.tryResume(attemptCtx, job, sess) {
		sess.State = model.SessionSubmitting
		id, err := m.api.StartSession(attemptCtx, prompt)
		metrics.IncAgentCall("start", err == nil)
		if err != nil {
			return nil, m.classify(ctx, attemptCtx, sess, err)
		}
		sess.ID = id
	}
	m.saveCheckpoint(attemptCtx, job.ID, sess)

	sess.State = model.SessionPolling
	for {
		st, err := m.pollStatus(attemptCtx, sess)
		if err != nil {
			return nil, m.classify(ctx, attemptCtx, sess, err)
		}
		sess.LastPollAt = time.Now()

		if err := m.fetchNew(attemptCtx, sess); err != nil {
			return nil, m.classify(ctx, attemptCtx, sess, err)
		}
		m.saveCheckpoint(attemptCtx, job.ID, sess)

		switch st.State {
		case adapter.RemoteFinished:
			sess.State = model.SessionCompleted
			rep, err := ExtractReport(sess.Messages, job.MaxCriticalItems)
			if err != nil {
				sess.State = model.SessionFailed
				return nil, err
			}
			return rep, nil
		case adapter.RemoteError:
			// The remote session itself is dead; a resume would fail too.
			sess.State = model.SessionFailed
			m.clearCheckpoint(job.ID)
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionFailed, st.Err)
		}

		if err := sleepCtx(attemptCtx, m.policy.PollInterval); err != nil {
			return nil, m.classify(ctx, attemptCtx, sess, err)
		}
	}
}

// classify maps a failed call to the attempt-level error: session timeout
// when the job deadline expired, cancellation when the batch was cancelled,
// the raw error otherwise. On deadline or cancellation mid-poll the partial
// transcript is still fetched for diagnostics.
func (m *SessionManager) classify(parent, attemptCtx context.Context, sess *model.Session, err error) error {
	polling := sess.State == model.SessionPolling
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		if polling {
			m.fetchPartial(sess)
		}
		sess.State = model.SessionTimedOut
		return fmt.Errorf("%w after %s", domain.ErrSessionTimeout, time.Since(sess.StartedAt).Round(time.Second))
	}
	if parent.Err() != nil {
		if polling {
			m.fetchPartial(sess)
			sess.State = model.SessionTimedOut
		} else {
			sess.State = model.SessionFailed
		}
		return fmt.Errorf("%w: %v", domain.ErrCancelled, err)
	}
	sess.State = model.SessionFailed
	return err
}

func (m *SessionManager) pollStatus(ctx context.Context, sess *model.Session) (adapter.SessionStatus, error) {
	var st adapter.SessionStatus
	err := m.callWithRetry(ctx, "status", func(ctx context.Context) error {
		var cerr error
		st, cerr = m.api.Status(ctx, sess.ID)
		return cerr
	})
	return st, err
}

// fetchNew appends messages the session has not observed yet. Appending is
// idempotent by remote offset, so a retried fetch can never duplicate.
func (m *SessionManager) fetchNew(ctx context.Context, sess *model.Session) error {
	offset := len(sess.Messages)
	var msgs []model.Message
	err := m.callWithRetry(ctx, "messages", func(ctx context.Context) error {
		var cerr error
		msgs, cerr = m.api.Messages(ctx, sess.ID, offset)
		return cerr
	})
	if err != nil {
		return err
	}
	sess.AppendMessages(offset, msgs)
	return nil
}

// fetchPartial grabs whatever transcript exists when an attempt is being
// abandoned. Best effort on a detached context: the attempt's own context
// is already dead.
func (m *SessionManager) fetchPartial(sess *model.Session) {
	if sess.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	offset := len(sess.Messages)
	msgs, err := m.api.Messages(ctx, sess.ID, offset)
	if err != nil {
		m.log.Debug().Err(err).Str("job_id", sess.JobID).Msg("partial transcript fetch failed")
		return
	}
	sess.AppendMessages(offset, msgs)
}

// callWithRetry retries transient single-call failures in place, up to the
// per-call limit. The job-level attempt counter is not touched here.
func (m *SessionManager) callWithRetry(ctx context.Context, op string, call func(context.Context) error) error {
	for try := 0; ; try++ {
		err := call(ctx)
		metrics.IncAgentCall(op, err == nil)
		if err == nil || try >= m.policy.CallRetryLimit || ctx.Err() != nil || !domain.IsRetryable(err) {
			return err
		}
		metrics.IncAgentCallRetry(op)
		d := m.policy.BackoffBase << try
		if d > m.policy.BackoffMax {
			d = m.policy.BackoffMax
		}
		if serr := sleepCtx(ctx, jitter(d)); serr != nil {
			return err
		}
	}
}

func (m *SessionManager) tryResume(ctx context.Context, job *model.ReviewJob, sess *model.Session) bool {
	cp, err := m.checkpoints.Find(ctx, job.ID)
	if err != nil || cp == nil || cp.SessionID == "" {
		return false
	}
	st, err := m.api.Status(ctx, cp.SessionID)
	if err != nil || st.State == adapter.RemoteError {
		m.clearCheckpoint(job.ID)
		return false
	}
	sess.ID = cp.SessionID
	m.log.Info().Str("job_id", job.ID).Str("session_id", cp.SessionID).Int("offset", cp.Offset).Msg("resuming existing session")
	return true
}

func (m *SessionManager) saveCheckpoint(ctx context.Context, jobID string, sess *model.Session) {
	if sess.ID == "" {
		return
	}
	cp := &repository.Checkpoint{SessionID: sess.ID, Offset: len(sess.Messages), Attempt: sess.Attempt}
	if err := m.checkpoints.Save(ctx, jobID, cp); err != nil {
		m.log.Debug().Err(err).Str("job_id", jobID).Msg("checkpoint save failed")
	}
}

func (m *SessionManager) clearCheckpoint(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.checkpoints.Clear(ctx, jobID); err != nil {
		m.log.Debug().Err(err).Str("job_id", jobID).Msg("checkpoint clear failed")
	}
}

// backoff sleeps between job attempts: exponential in the attempt number,
// capped, with jitter on the upper half.
func (m *SessionManager) backoff(ctx context.Context, attempt int) error {
	d := m.policy.BackoffBase << (attempt - 1)
	if d <= 0 || d > m.policy.BackoffMax {
		d = m.policy.BackoffMax
	}
	return sleepCtx(ctx, jitter(d))
}

func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
