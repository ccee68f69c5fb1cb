// File: internal/infra/sink/filesystem.go
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

var _ repository.ReportSink = (*FilesystemSink)(nil)

// FilesystemSink writes one directory per job under the output root:
// critical_assessment.md with the rendered report (successful jobs) and
// review_results.json with session metadata and the raw transcript.
type FilesystemSink struct {
	root string
	log  *zerolog.Logger
}

func NewFilesystemSink(root string, logger *zerolog.Logger) (*FilesystemSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	l := logger.With().Str("component", "FilesystemSink").Logger()
	return &FilesystemSink{root: root, log: &l}, nil
}

type sessionRecord struct {
	SessionID  string          `json:"session_id"`
	State      string          `json:"state"`
	Attempt    int             `json:"attempt"`
	StartedAt  time.Time       `json:"started_at"`
	LastPollAt time.Time       `json:"last_poll_at"`
	Messages   []model.Message `json:"messages"`
}

type resultRecord struct {
	JobID        string                          `json:"job_id"`
	Status       model.OutcomeStatus             `json:"status"`
	AttemptsUsed int                             `json:"attempts_used"`
	Error        string                          `json:"error,omitempty"`
	Report       *model.CriticalAssessmentReport `json:"report,omitempty"`
	Session      *sessionRecord                  `json:"session,omitempty"`
}

func (s *FilesystemSink) Write(ctx context.Context, out *model.BatchOutcome) error {
	dir := filepath.Join(s.root, out.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	rec := resultRecord{
		JobID:        out.JobID,
		Status:       out.Status,
		AttemptsUsed: out.AttemptsUsed,
		Report:       out.Report,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if out.Session != nil {
		rec.Session = &sessionRecord{
			SessionID:  out.Session.ID,
			State:      string(out.Session.State),
			Attempt:    out.Session.Attempt,
			StartedAt:  out.Session.StartedAt,
			LastPollAt: out.Session.LastPollAt,
			Messages:   out.Session.Messages,
		}
	}

	if err := writeJSON(filepath.Join(dir, "review_results.json"), rec); err != nil {
		return err
	}
	if out.Report != nil {
		path := filepath.Join(dir, "critical_assessment.md")
		if err := os.WriteFile(path, []byte(out.Report.Markdown()), 0o644); err != nil {
			return fmt.Errorf("write assessment: %w", err)
		}
	}
	s.log.Debug().Str("job_id", out.JobID).Str("dir", dir).Msg("outcome persisted")
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteBatchArtifacts writes the aggregate batch_summary.json and a
// human-readable comparative_report.md next to the per-job directories.
func (s *FilesystemSink) WriteBatchArtifacts(outcomes []model.BatchOutcome, summary model.BatchSummary) error {
	type summaryRecord struct {
		Total     int            `json:"total"`
		PerStatus map[string]int `json:"per_status"`
	}
	sr := summaryRecord{Total: summary.Total, PerStatus: make(map[string]int, len(summary.PerStatus))}
	for k, v := range summary.PerStatus {
		sr.PerStatus[string(k)] = v
	}
	if err := writeJSON(filepath.Join(s.root, "batch_summary.json"), sr); err != nil {
		return err
	}
	report := comparativeReport(outcomes, summary)
	if err := os.WriteFile(filepath.Join(s.root, "comparative_report.md"), []byte(report), 0o644); err != nil {
		return fmt.Errorf("write comparative report: %w", err)
	}
	return nil
}

func comparativeReport(outcomes []model.BatchOutcome, summary model.BatchSummary) string {
	var b []byte
	add := func(format string, args ...any) { b = fmt.Appendf(b, format+"\n", args...) }

	add("# Comparative Paper Review Report")
	add("")
	add("## Summary")
	add("- Total papers reviewed: %d", summary.Total)
	add("- Successful reviews: %d", summary.Count(model.StatusSuccess))
	add("- Failed reviews: %d", summary.Count(model.StatusFailed)+summary.Count(model.StatusInvalid))
	add("- Timed out: %d", summary.Count(model.StatusTimedOut))
	add("")
	add("## Individual Paper Results")
	add("")
	for _, o := range outcomes {
		title := "Unknown"
		if o.Report != nil && o.Report.Title != "" {
			title = o.Report.Title
		}
		add("### %s", o.JobID)
		if o.Status == model.StatusSuccess {
			add("**Title**: %s", title)
			add("**Status**: Success (%d items, %d attempts)", len(o.Report.Items), o.AttemptsUsed)
		} else {
			add("**Status**: %s (%d attempts)", o.Status, o.AttemptsUsed)
			if o.Err != nil {
				add("**Error**: %s", o.Err.Error())
			}
		}
		add("")
	}
	return string(b)
}
