package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxCriticalItems = 10
	DefaultSessionTimeout   = time.Hour
	DefaultMaxRetries       = 2
)

// ReviewJob is one paper to review. Immutable once submitted to the batch.
type ReviewJob struct {
	ID               string
	PaperData        map[string]any // opaque payload forwarded to the prompt builder
	MaxCriticalItems int
	Timeout          time.Duration
	MaxRetries       int
}

func NewReviewJob(paperData map[string]any) *ReviewJob {
	j := &ReviewJob{
		ID:         uuid.NewString(),
		PaperData:  paperData,
		MaxRetries: DefaultMaxRetries,
	}
	j.Normalize()
	return j
}

// Normalize applies defaults to zero-valued fields.
func (j *ReviewJob) Normalize() {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.MaxCriticalItems <= 0 {
		j.MaxCriticalItems = DefaultMaxCriticalItems
	}
	if j.Timeout <= 0 {
		j.Timeout = DefaultSessionTimeout
	}
	if j.MaxRetries < 0 {
		j.MaxRetries = 0
	}
}

// Title returns the paper title from the opaque payload, if present.
func (j *ReviewJob) Title() string {
	if t, ok := j.PaperData["title"].(string); ok && t != "" {
		return t
	}
	return "Unknown"
}
