package repository

import (
	"context"

	"paper-review-batch/internal/domain/model"
)

// ReportSink persists one job's terminal outcome: the validated report when
// the job succeeded, and the raw session metadata either way. Sinks must not
// mutate the outcome.
type ReportSink interface {
	Write(ctx context.Context, out *model.BatchOutcome) error
}
