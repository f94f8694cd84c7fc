package queue

import (
	"time"

	"github.com/linnemanlabs/carequeue/internal/triage"
)

// Status tracks where a case is in its lifecycle.
type Status string

const (
	// StatusQueued is the only non-terminal state; every case starts here.
	StatusQueued Status = "queued"

	// StatusCompleted means the case was served.
	StatusCompleted Status = "completed"

	// StatusCancelled means the case was withdrawn before being served.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Label is the human-facing form used in notification text.
func (s Status) Label() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Case is a single request for care waiting in, or removed from, the queue.
// Priority, SymptomText and CreatedAt never change after creation.
type Case struct {
	ID          string          `json:"id"`
	SubjectID   string          `json:"patient_id"`
	SymptomText string          `json:"symptoms"`
	Priority    triage.Priority `json:"priority"`
	Scored      bool            `json:"scored,omitempty"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ClosedAt    time.Time       `json:"closed_at,omitzero"`
}

// Less is the queue order: priority rank, then creation time, then id.
// ULIDs sort by creation so the id keeps the order total on timestamp ties.
func Less(a, b *Case) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
