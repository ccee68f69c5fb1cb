package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/repository"
	"paper-review-batch/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// JobRunner drives one job to a terminal outcome.
type JobRunner interface {
	Run(ctx context.Context, job *model.ReviewJob) model.BatchOutcome
}

// JobProgress is one job's live state, exposed for the status server.
type JobProgress struct {
	JobID  string `json:"job_id"`
	Title  string `json:"title"`
	Status string `json:"status"` // queued | running | terminal status
}

// BatchRunner fans review jobs out to session managers under a hard
// concurrency ceiling. Each runner owns its own admission gate, so
// independent batches never interfere.
type BatchRunner struct {
	runner JobRunner
	sinks  []repository.ReportSink
	log    *zerolog.Logger

	mu       sync.Mutex
	progress []JobProgress
}

func NewBatchRunner(runner JobRunner, sinks []repository.ReportSink, logger *zerolog.Logger) *BatchRunner {
	l := logger.With().Str("component", "BatchRunner").Logger()
	return &BatchRunner{runner: runner, sinks: sinks, log: &l}
}

// RunBatch executes all jobs with at most limit session managers in flight.
// The returned slice always has one outcome per input job, in input order.
// A failure inside one job, including a panic, never disturbs the others;
// on cancellation, jobs not yet admitted are marked failed with a
// cancellation error while admitted jobs run to their own terminal state.
func (b *BatchRunner) RunBatch(ctx context.Context, jobs []*model.ReviewJob, limit int) []model.BatchOutcome {
	if limit <= 0 {
		limit = 1
	}
	b.initProgress(jobs)
	b.log.Info().Int("jobs", len(jobs)).Int("limit", limit).Msg("batch started")
	start := time.Now()

	outcomes := make([]model.BatchOutcome, len(jobs))
	gate := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, job := range jobs {
		// FIFO admission: block here until a slot frees.
		select {
		case <-ctx.Done():
			outcomes[i] = model.BatchOutcome{
				JobID:  job.ID,
				Status: model.StatusFailed,
				Err:    fmt.Errorf("%w before start: %v", domain.ErrCancelled, context.Cause(ctx)),
			}
			b.setProgress(i, string(model.StatusFailed))
			continue
		case gate <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, job *model.ReviewJob) {
			defer wg.Done()
			// The slot is released on every exit path, panics included.
			defer func() { <-gate }()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = model.BatchOutcome{
						JobID:  job.ID,
						Status: model.StatusFailed,
						Err:    fmt.Errorf("job panicked: %v", r),
					}
					b.setProgress(i, string(model.StatusFailed))
				}
			}()

			metrics.JobStarted()
			defer metrics.JobFinished()
			b.setProgress(i, "running")
			jobStart := time.Now()

			outcomes[i] = b.runner.Run(ctx, job)
			metrics.ObserveJobDuration(time.Since(jobStart))
			b.setProgress(i, string(outcomes[i].Status))
			b.persist(&outcomes[i])
		}(i, job)
	}
	wg.Wait()

	summary := Summarize(outcomes)
	b.log.Info().
		Dur("elapsed", time.Since(start)).
		Int("total", summary.Total).
		Int("success", summary.Count(model.StatusSuccess)).
		Int("failed", summary.Count(model.StatusFailed)).
		Int("timed_out", summary.Count(model.StatusTimedOut)).
		Int("invalid", summary.Count(model.StatusInvalid)).
		Msg("batch finished")
	return outcomes
}

// persist hands one terminal outcome to every sink. Sink failures are
// logged, not propagated: persistence problems must not fail the job.
func (b *BatchRunner) persist(out *model.BatchOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, sink := range b.sinks {
		if err := sink.Write(ctx, out); err != nil {
			b.log.Error().Err(err).Str("job_id", out.JobID).Msg("report sink write failed")
		}
	}
}

// Summarize tallies outcomes per status. Advisory: the outcome list is the
// source of truth.
func Summarize(outcomes []model.BatchOutcome) model.BatchSummary {
	s := model.BatchSummary{
		Total:     len(outcomes),
		PerStatus: make(map[model.OutcomeStatus]int, 4),
	}
	for _, o := range outcomes {
		s.PerStatus[o.Status]++
	}
	return s
}

func (b *BatchRunner) initProgress(jobs []*model.ReviewJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = make([]JobProgress, len(jobs))
	for i, j := range jobs {
		b.progress[i] = JobProgress{JobID: j.ID, Title: j.Title(), Status: "queued"}
	}
}

func (b *BatchRunner) setProgress(i int, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= 0 && i < len(b.progress) {
		b.progress[i].Status = status
	}
}

// Snapshot returns a copy of the per-job progress list.
func (b *BatchRunner) Snapshot() []JobProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]JobProgress, len(b.progress))
	copy(out, b.progress)
	return out
}
