package tracker

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes what produced an operation.
type Kind string

// Operation kinds.
const (
	KindCrawl  Kind = "crawl"
	KindUpload Kind = "upload"
)

// Status is the lifecycle state reported by the backend.
type Status string

// Operation statuses. Completed and Failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends an operation's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Operation is one observable background job. ProgressID is immutable and
// unique per submission; SourceKey identifies the logical knowledge source
// the operation acts on, so a re-crawl of the same source displaces the
// previously displayed operation rather than appearing alongside it.
type Operation struct {
	ProgressID string    `json:"progress_id"`
	SourceKey  string    `json:"source_key"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	Percent    int       `json:"progress_percent"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Update is one progress delta from the backend collaborator.
type Update struct {
	ProgressID string
	Status     Status
	Percent    int
	Message    string
	TS         time.Time
}

// Validate performs coarse validation on Update payloads.
func (u Update) Validate() error {
	if u.ProgressID == "" {
		return errors.New("progress id is required")
	}
	switch u.Status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", u.Status)
	}
	if u.Percent < 0 || u.Percent > 100 {
		return fmt.Errorf("percent %d out of range", u.Percent)
	}
	return nil
}
