package model

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type SessionState string

const (
	SessionCreated    SessionState = "created"
	SessionSubmitting SessionState = "submitting"
	SessionPolling    SessionState = "polling"
	SessionCompleted  SessionState = "completed"
	SessionFailed     SessionState = "failed"
	SessionTimedOut   SessionState = "timed_out"
)

// Terminal reports whether no further transition occurs from s.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionTimedOut:
		return true
	}
	return false
}

// Message is one transcript entry, validated at ingestion.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one attempt to complete a job against the remote agent.
// It is exclusively owned by the session manager driving it.
type Session struct {
	ID         string // assigned by the remote API, empty until start succeeds
	JobID      string
	AttemptID  string // ULID, lexically ordered across retries
	State      SessionState
	Attempt    int // 1-based
	StartedAt  time.Time
	LastPollAt time.Time
	Messages   []Message // append-only, ordered by remote offset
}

func NewSession(jobID string, attempt int) *Session {
	now := time.Now()
	return &Session{
		JobID:     jobID,
		AttemptID: ulid.MustNew(ulid.Timestamp(now), rand.New(rand.NewSource(now.UnixNano()))).String(),
		State:     SessionCreated,
		Attempt:   attempt,
		StartedAt: now,
	}
}

// AppendMessages merges a page fetched at the given remote offset into the
// transcript. Entries the session already holds are skipped, so re-fetching
// an overlapping page is idempotent and can never reorder the transcript.
// Returns the number of newly observed messages.
func (s *Session) AppendMessages(offset int, msgs []Message) int {
	added := 0
	for i, m := range msgs {
		idx := offset + i
		if idx < len(s.Messages) {
			continue
		}
		s.Messages = append(s.Messages, m)
		added++
	}
	return added
}
