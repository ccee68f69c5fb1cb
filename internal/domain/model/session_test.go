// File: internal/domain/model/session_test.go
package model

import (
	"testing"
	"time"
)

func msgs(contents ...string) []Message {
	out := make([]Message, len(contents))
	for i, c := range contents {
		out[i] = Message{Role: "assistant", Content: c, Timestamp: time.Now()}
	}
	return out
}

func TestAppendMessagesIdempotent(t *testing.T) {
	s := NewSession("job-1", 1)

	if added := s.AppendMessages(0, msgs("a", "b")); added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	// Re-fetching an overlapping page must not duplicate or reorder.
	if added := s.AppendMessages(0, msgs("a", "b", "c")); added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if added := s.AppendMessages(3, msgs()); added != 0 {
		t.Errorf("added = %d, want 0", added)
	}

	want := []string{"a", "b", "c"}
	if len(s.Messages) != len(want) {
		t.Fatalf("messages = %d, want %d", len(s.Messages), len(want))
	}
	for i, w := range want {
		if s.Messages[i].Content != w {
			t.Errorf("message %d = %q, want %q", i, s.Messages[i].Content, w)
		}
	}
}

func TestNewSessionAttemptIDsOrdered(t *testing.T) {
	a := NewSession("job-1", 1)
	time.Sleep(2 * time.Millisecond)
	b := NewSession("job-1", 2)
	if a.AttemptID >= b.AttemptID {
		t.Errorf("attempt ids not lexically ordered: %s >= %s", a.AttemptID, b.AttemptID)
	}
}

func TestSessionStateTerminal(t *testing.T) {
	terminal := []SessionState{SessionCompleted, SessionFailed, SessionTimedOut}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
	live := []SessionState{SessionCreated, SessionSubmitting, SessionPolling}
	for _, st := range live {
		if st.Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
	}
}
