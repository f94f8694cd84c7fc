package notify

import "context"

// Filter selects notifications for ListNotifications. Empty fields match everything.
type Filter struct {
	SubjectID string
	CaseID    string
	Status    Status
	Offset    int
	Limit     int
}

// Store is the persistence interface for notifications.
//
// CreateNotification is atomic and rejects a second retry of the same
// notification with apperr.ErrInvalidState. FinalizeNotification only
// applies to a stored Pending record. Lists are newest first, except
// ListRetryable, which pages forward by ID from the after cursor.
type Store interface {
	CreateNotification(ctx context.Context, n *Notification) error
	FinalizeNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, bool, error)
	ListNotifications(ctx context.Context, f Filter) ([]*Notification, error)
	ListRetryable(ctx context.Context, maxAttempts int, after string, limit int) ([]*Notification, error)
}
