package queue

import (
	"context"
	"time"

	"github.com/linnemanlabs/carequeue/internal/triage"
)

// Store is the persistence interface for cases.
//
// TransitionCase must move a case out of StatusQueued at most once: it returns
// an error wrapping apperr.ErrNotFound for an unknown id and
// apperr.ErrInvalidState when the case is already terminal.
type Store interface {
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id string) (*Case, bool, error)
	ListCasesBySubject(ctx context.Context, subjectID string) ([]*Case, error)
	ListQueued(ctx context.Context, offset, limit int) ([]*Case, error)
	CountQueued(ctx context.Context) (map[triage.Priority]int, error)
	TransitionCase(ctx context.Context, id string, to Status, at time.Time) (*Case, error)
}
