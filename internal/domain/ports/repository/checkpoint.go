package repository

import "context"

// Checkpoint records the resumable state of one job's in-flight session:
// the remote session id and how much of the transcript has been observed.
type Checkpoint struct {
	SessionID string `json:"session_id"`
	Offset    int    `json:"offset"`
	Attempt   int    `json:"attempt"`
}

// CheckpointRepository lets a session manager resume polling an existing
// remote session by id instead of restarting from scratch. Find returns
// domain.ErrNotFound when no checkpoint exists for the job.
type CheckpointRepository interface {
	Save(ctx context.Context, jobID string, cp *Checkpoint) error
	Find(ctx context.Context, jobID string) (*Checkpoint, error)
	Clear(ctx context.Context, jobID string) error
}
