package model

type OutcomeStatus string

const (
	StatusSuccess  OutcomeStatus = "success"
	StatusFailed   OutcomeStatus = "failed"
	StatusTimedOut OutcomeStatus = "timed_out"
	StatusInvalid  OutcomeStatus = "invalid" // extraction failed on a finished session
)

// BatchOutcome is the terminal result of one job. Report is set iff the
// status is Success; Err is set otherwise. Session carries the final (or
// partial, on timeout) transcript for diagnostics and persistence.
type BatchOutcome struct {
	JobID        string
	Status       OutcomeStatus
	Report       *CriticalAssessmentReport
	Err          error
	AttemptsUsed int
	Session      *Session
}

// BatchSummary is the advisory per-status tally for one batch run. The
// per-job outcome list remains the source of truth.
type BatchSummary struct {
	Total     int
	PerStatus map[OutcomeStatus]int
}

func (s BatchSummary) Count(status OutcomeStatus) int {
	return s.PerStatus[status]
}
