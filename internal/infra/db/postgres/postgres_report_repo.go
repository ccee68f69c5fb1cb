package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/repository"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ReportSink = (*reportRepo)(nil)

// reportRepo persists review outcomes to Postgres so a dashboard or later
// batch can query results without re-reading the filesystem artifacts.
//
// Expected schema:
//
//	CREATE TABLE review_outcomes (
//	    job_id        TEXT PRIMARY KEY,
//	    status        TEXT NOT NULL,
//	    attempts_used INT NOT NULL,
//	    last_error    TEXT,
//	    session_id    TEXT,
//	    report        JSONB,
//	    transcript    JSONB,
//	    updated_at    TIMESTAMPTZ NOT NULL
//	);
type reportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *reportRepo {
	return &reportRepo{pool: pool}
}

func (r *reportRepo) Write(ctx context.Context, out *model.BatchOutcome) error {
	var lastErr *string
	if out.Err != nil {
		s := out.Err.Error()
		lastErr = &s
	}
	var sessionID *string
	var transcript []byte
	if out.Session != nil {
		sessionID = &out.Session.ID
		b, err := json.Marshal(out.Session.Messages)
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		transcript = b
	}
	var report []byte
	if out.Report != nil {
		b, err := json.Marshal(out.Report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		report = b
	}

	const q = `
INSERT INTO review_outcomes (job_id, status, attempts_used, last_error, session_id, report, transcript, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (job_id) DO UPDATE SET
  status = EXCLUDED.status,
  attempts_used = EXCLUDED.attempts_used,
  last_error = EXCLUDED.last_error,
  session_id = EXCLUDED.session_id,
  report = EXCLUDED.report,
  transcript = EXCLUDED.transcript,
  updated_at = EXCLUDED.updated_at;`

	_, err := r.pool.Exec(ctx, q,
		out.JobID, string(out.Status), out.AttemptsUsed, lastErr, sessionID, report, transcript, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("save outcome %s: %s (%s)", out.JobID, pgErr.Message, pgErr.Code)
		}
		return fmt.Errorf("save outcome %s: %w", out.JobID, err)
	}
	return nil
}
