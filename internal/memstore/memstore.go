// Package memstore provides an in-memory implementation of the patient,
// queue and notify stores. Suitable for dev/testing.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/notify"
	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/queue"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

// Store holds patients, cases and notifications in memory.
type Store struct {
	mu            sync.RWMutex
	patients      map[string]*patient.Patient
	patientOrder  []string
	cases         map[string]*queue.Case
	notifications map[string]*notify.Notification
	retried       map[string]string // failed notification ID -> retry ID
}

var (
	_ patient.Store = (*Store)(nil)
	_ queue.Store   = (*Store)(nil)
	_ notify.Store  = (*Store)(nil)
)

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		patients:      make(map[string]*patient.Patient),
		cases:         make(map[string]*queue.Case),
		notifications: make(map[string]*notify.Notification),
		retried:       make(map[string]string),
	}
}

// GetPatient retrieves a patient by ID. Returns a copy.
func (s *Store) GetPatient(_ context.Context, id string) (*patient.Patient, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

// CreatePatient stores a copy of p unless a patient with the same name and
// age exists, in which case a copy of the existing patient is returned.
func (s *Store) CreatePatient(_ context.Context, p *patient.Patient) (*patient.Patient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.patientOrder {
		existing := s.patients[id]
		if existing.Name == p.Name && existing.Age == p.Age {
			cp := *existing
			return &cp, false, nil
		}
	}
	if _, ok := s.patients[p.ID]; ok {
		return nil, false, fmt.Errorf("patient %s already exists: %w", p.ID, apperr.ErrInvalidState)
	}
	s.patientOrder = append(s.patientOrder, p.ID)
	cp, out := *p, *p
	s.patients[p.ID] = &cp
	return &out, true, nil
}

// SetPatientContact replaces the contact of an existing patient.
func (s *Store) SetPatientContact(_ context.Context, id, contact string) (*patient.Patient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, false, nil
	}
	p.Contact = contact
	cp := *p
	return &cp, true, nil
}

// ListPatients returns patients in registration order.
func (s *Store) ListPatients(_ context.Context, offset, limit int) ([]*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*patient.Patient, 0, len(s.patientOrder))
	for _, id := range s.patientOrder {
		cp := *s.patients[id]
		out = append(out, &cp)
	}
	return window(out, offset, limit), nil
}

// CreateCase stores a copy of a new case. An existing id is rejected.
func (s *Store) CreateCase(_ context.Context, c *queue.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("case %s already exists: %w", c.ID, apperr.ErrInvalidState)
	}
	cp := *c
	s.cases[c.ID] = &cp
	return nil
}

// GetCase retrieves a case by ID. Returns a copy.
func (s *Store) GetCase(_ context.Context, id string) (*queue.Case, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

// ListCasesBySubject returns a patient's cases, newest first.
func (s *Store) ListCasesBySubject(_ context.Context, subjectID string) ([]*queue.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*queue.Case
	for _, c := range s.cases {
		if c.SubjectID == subjectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListQueued returns queued cases in serving order.
func (s *Store) ListQueued(_ context.Context, offset, limit int) ([]*queue.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*queue.Case
	for _, c := range s.cases {
		if c.Status == queue.StatusQueued {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return queue.Less(out[i], out[j]) })
	return window(out, offset, limit), nil
}

// CountQueued counts queued cases per priority.
func (s *Store) CountQueued(_ context.Context) (map[triage.Priority]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[triage.Priority]int)
	for _, c := range s.cases {
		if c.Status == queue.StatusQueued {
			counts[c.Priority]++
		}
	}
	return counts, nil
}

// TransitionCase moves a queued case to a terminal status under the write lock.
func (s *Store) TransitionCase(_ context.Context, id string, to queue.Status, at time.Time) (*queue.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, apperr.ErrNotFound)
	}
	if c.Status != queue.StatusQueued {
		return nil, fmt.Errorf("case %s is %s: %w", id, c.Status, apperr.ErrInvalidState)
	}
	c.Status = to
	c.ClosedAt = at
	cp := *c
	return &cp, nil
}

// CreateNotification stores a copy of a new notification. A second retry of
// the same notification is rejected.
func (s *Store) CreateNotification(_ context.Context, n *notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return fmt.Errorf("notification %s already exists: %w", n.ID, apperr.ErrInvalidState)
	}
	if n.RetryOf != "" {
		if prev, ok := s.retried[n.RetryOf]; ok {
			return fmt.Errorf("notification %s already retried as %s: %w", n.RetryOf, prev, apperr.ErrInvalidState)
		}
		s.retried[n.RetryOf] = n.ID
	}
	s.notifications[n.ID] = cloneNotification(n)
	return nil
}

// FinalizeNotification records the delivery outcome of a pending notification.
func (s *Store) FinalizeNotification(_ context.Context, n *notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notifications[n.ID]
	if !ok {
		return fmt.Errorf("notification %s: %w", n.ID, apperr.ErrNotFound)
	}
	if cur.Status != notify.StatusPending {
		return fmt.Errorf("notification %s is %s: %w", n.ID, cur.Status, apperr.ErrInvalidState)
	}
	cur.Status = n.Status
	cur.FailureReason = n.FailureReason
	if n.SentAt != nil {
		at := *n.SentAt
		cur.SentAt = &at
	}
	return nil
}

// GetNotification retrieves a notification by ID. Returns a copy.
func (s *Store) GetNotification(_ context.Context, id string) (*notify.Notification, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, false, nil
	}
	return cloneNotification(n), true, nil
}

// ListNotifications returns notifications matching f, newest first.
func (s *Store) ListNotifications(_ context.Context, f notify.Filter) ([]*notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notify.Notification
	for _, n := range s.notifications {
		if f.SubjectID != "" && n.SubjectID != f.SubjectID {
			continue
		}
		if f.CaseID != "" && n.CaseID != f.CaseID {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	sortNewestFirst(out)
	return window(out, f.Offset, f.Limit), nil
}

// ListRetryable returns failed notifications with no retry and fewer than
// maxAttempts attempts whose ID sorts after the cursor, in ID order.
func (s *Store) ListRetryable(_ context.Context, maxAttempts int, after string, limit int) ([]*notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notify.Notification
	for id, n := range s.notifications {
		if n.Status != notify.StatusFailed || n.Attempt >= maxAttempts {
			continue
		}
		if _, done := s.retried[id]; done || id <= after {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	slices.SortFunc(out, func(a, b *notify.Notification) int { return strings.Compare(a.ID, b.ID) })
	return window(out, 0, limit), nil
}

func cloneNotification(n *notify.Notification) *notify.Notification {
	cp := *n
	if n.SentAt != nil {
		at := *n.SentAt
		cp.SentAt = &at
	}
	return &cp
}

func sortNewestFirst(ns []*notify.Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].ID > ns[j].ID
	})
}

// window applies offset and limit. A non-positive limit returns everything after offset.
func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
