package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	// Common domain errors
	ErrNotFound       = errors.New("entity not found")
	ErrSessionTimeout = errors.New("session deadline exceeded")
	ErrSessionFailed  = errors.New("remote session reported failure")
	ErrCancelled      = errors.New("job cancelled")
	ErrUnhealthy      = errors.New("agent server unhealthy")
	ErrPromptTooLarge = errors.New("prompt exceeds token budget")
	ErrInvalidJob     = errors.New("invalid review job")
)

// APIError is a non-2xx or malformed response from the agent server.
// StatusCode 0 means the response decoded but violated the expected shape.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("agent api: malformed response: %s", e.Message)
	}
	return fmt.Sprintf("agent api: http %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether a fresh call may succeed. Malformed payloads
// and 4xx responses are permanent.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsRetryable classifies an error from a single agent API call. Transport
// faults and per-call timeouts are transient; cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// http.Client wraps refused connections and DNS failures in *url.Error.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ExtractKind names one of the transcript extraction failure modes.
type ExtractKind string

const (
	ExtractNoAssessment  ExtractKind = "no_assessment_found"
	ExtractMalformedItem ExtractKind = "malformed_item"
	ExtractItemSequence  ExtractKind = "item_sequence_error"
	ExtractItemCount     ExtractKind = "item_count_out_of_range"
)

// ExtractionError is a deterministic parsing defect in a finished transcript.
// It is never retried: re-running the remote agent cannot fix it.
type ExtractionError struct {
	Kind ExtractKind
	Item int // offending item number for MalformedItem / ItemSequence
	Msg  string
}

func (e *ExtractionError) Error() string {
	if e.Item > 0 {
		return fmt.Sprintf("extraction: %s (item %d): %s", e.Kind, e.Item, e.Msg)
	}
	return fmt.Sprintf("extraction: %s: %s", e.Kind, e.Msg)
}
