package notify

import "time"

// Status tracks delivery of a single notification.
type Status string

const (
	// StatusPending means recorded, delivery not yet reported.
	StatusPending Status = "pending"

	// StatusSent means the channel reported success.
	StatusSent Status = "sent"

	// StatusFailed means the channel reported failure. Failed records are
	// never rewritten; a retry is a new notification.
	StatusFailed Status = "failed"
)

// Common notification kinds. Kind is free-form and has no behavioral effect.
const (
	KindConfirmation = "Confirmation"
	KindStatusUpdate = "Status Update"
	KindReminder     = "Reminder"
)

// Notification is the audit record of one delivery attempt to a patient.
type Notification struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"patient_id"`
	CaseID        string     `json:"case_id,omitempty"`
	Message       string     `json:"message"`
	Address       string     `json:"contact"`
	Kind          string     `json:"kind"`
	Status        Status     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Attempt       int        `json:"attempt"`
	RetryOf       string     `json:"retry_of,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at"`
}
