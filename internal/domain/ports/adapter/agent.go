package adapter

import (
	"context"

	"paper-review-batch/internal/domain/model"
)

// RemoteState is the remote agent server's view of one session.
type RemoteState string

const (
	RemoteRunning  RemoteState = "running"
	RemoteFinished RemoteState = "finished"
	RemoteError    RemoteState = "error"
)

// SessionStatus is the decoded status of a remote session. Err carries the
// remote failure message when State is RemoteError.
type SessionStatus struct {
	State RemoteState
	Err   string
}

// AgentAPI is the session-oriented surface of the remote agent server.
// All calls are idempotent-safe to retry.
type AgentAPI interface {
	// Health reports whether the server is ready to accept sessions.
	Health(ctx context.Context) error
	// StartSession creates a session carrying the rendered prompt and
	// returns the remote session id.
	StartSession(ctx context.Context, prompt string) (string, error)
	// Status fetches the current remote state of a session.
	Status(ctx context.Context, sessionID string) (SessionStatus, error)
	// Messages returns the ordered transcript entries at and after the
	// given offset.
	Messages(ctx context.Context, sessionID string, sinceOffset int) ([]model.Message, error)
}
