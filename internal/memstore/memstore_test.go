package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/notify"
	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/queue"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func queued(id string, p triage.Priority, offset time.Duration) *queue.Case {
	return &queue.Case{
		ID:          id,
		SubjectID:   "p-1",
		SymptomText: "x",
		Priority:    p,
		Status:      queue.StatusQueued,
		CreatedAt:   t0.Add(offset),
	}
}

func TestStore_CaseCreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.CreateCase(ctx, queued("c-1", triage.PriorityUrgent, 0)); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	got, ok, err := s.GetCase(ctx, "c-1")
	if err != nil || !ok {
		t.Fatalf("GetCase: ok=%v err=%v", ok, err)
	}
	if got.Priority != triage.PriorityUrgent {
		t.Errorf("Priority = %v, want Urgent", got.Priority)
	}

	// Returned value is a copy.
	got.Status = queue.StatusCancelled
	again, _, _ := s.GetCase(ctx, "c-1")
	if again.Status != queue.StatusQueued {
		t.Errorf("stored status mutated through returned copy: %s", again.Status)
	}
}

func TestStore_CreateCaseDuplicate(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateCase(ctx, queued("c-1", triage.PriorityRoutine, 0))
	if err := s.CreateCase(ctx, queued("c-1", triage.PriorityRoutine, 0)); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestStore_GetCaseMissing(t *testing.T) {
	t.Parallel()

	_, ok, err := New().GetCase(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_ListQueuedOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for _, c := range []*queue.Case{
		queued("01A", triage.PriorityRoutine, 0),
		queued("01B", triage.PriorityUrgent, time.Second),
		queued("01C", triage.PriorityEmergency, 2*time.Second),
		queued("01D", triage.PriorityEmergency, 3*time.Second),
		queued("01F", triage.PriorityUrgent, time.Second), // same timestamp as 01B
		queued("01E", triage.Priority(9), 0),
	} {
		if err := s.CreateCase(ctx, c); err != nil {
			t.Fatalf("CreateCase: %v", err)
		}
	}
	if _, err := s.TransitionCase(ctx, "01D", queue.StatusCompleted, t0); err != nil {
		t.Fatalf("TransitionCase: %v", err)
	}

	got, err := s.ListQueued(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListQueued: %v", err)
	}
	want := []string{"01C", "01B", "01F", "01A", "01E"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("pos %d = %s, want %s", i, got[i].ID, id)
		}
	}

	page, _ := s.ListQueued(ctx, 1, 2)
	if len(page) != 2 || page[0].ID != "01B" || page[1].ID != "01F" {
		t.Errorf("page = %v", ids(page))
	}
	if beyond, _ := s.ListQueued(ctx, 10, 5); len(beyond) != 0 {
		t.Errorf("offset beyond end returned %d cases", len(beyond))
	}
}

func ids(cs []*queue.Case) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestStore_TransitionCase(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateCase(ctx, queued("c-1", triage.PriorityRoutine, 0))

	closed := t0.Add(time.Hour)
	c, err := s.TransitionCase(ctx, "c-1", queue.StatusCancelled, closed)
	if err != nil {
		t.Fatalf("TransitionCase: %v", err)
	}
	if c.Status != queue.StatusCancelled || !c.ClosedAt.Equal(closed) {
		t.Errorf("got status=%s closed=%v", c.Status, c.ClosedAt)
	}

	if _, err := s.TransitionCase(ctx, "c-1", queue.StatusCompleted, closed); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("second transition err = %v, want ErrInvalidState", err)
	}
	if _, err := s.TransitionCase(ctx, "missing", queue.StatusCompleted, closed); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing transition err = %v, want ErrNotFound", err)
	}
}

func TestStore_TransitionCaseRace(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateCase(ctx, queued("c-1", triage.PriorityRoutine, 0))

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			to := queue.StatusCompleted
			if i%2 == 1 {
				to = queue.StatusCancelled
			}
			if _, err := s.TransitionCase(ctx, "c-1", to, t0); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrInvalidState) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestStore_CountQueued(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateCase(ctx, queued("a", triage.PriorityEmergency, 0))
	_ = s.CreateCase(ctx, queued("b", triage.PriorityEmergency, time.Second))
	_ = s.CreateCase(ctx, queued("c", triage.PriorityRoutine, 0))
	_, _ = s.TransitionCase(ctx, "c", queue.StatusCompleted, t0)

	counts, err := s.CountQueued(ctx)
	if err != nil {
		t.Fatalf("CountQueued: %v", err)
	}
	if counts[triage.PriorityEmergency] != 2 || counts[triage.PriorityRoutine] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestStore_ListCasesBySubjectNewestFirst(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateCase(ctx, queued("a", triage.PriorityRoutine, 0))
	_ = s.CreateCase(ctx, queued("b", triage.PriorityEmergency, time.Minute))
	other := queued("c", triage.PriorityRoutine, 2*time.Minute)
	other.SubjectID = "p-2"
	_ = s.CreateCase(ctx, other)

	got, err := s.ListCasesBySubject(ctx, "p-1")
	if err != nil {
		t.Fatalf("ListCasesBySubject: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("got %v, want [b a]", ids(got))
	}
}

func TestStore_Patients(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tests := []struct {
		id, name    string
		age         int
		wantID      string
		wantCreated bool
	}{
		{"p-1", "Ada", 36, "p-1", true},
		{"p-2", "Ada", 36, "p-1", false},
		{"p-3", "Grace", 85, "p-3", true},
		{"p-4", "Ada", 37, "p-4", true},
	}
	for _, tt := range tests {
		got, created, err := s.CreatePatient(ctx, &patient.Patient{ID: tt.id, Name: tt.name, Age: tt.age})
		if err != nil {
			t.Fatalf("CreatePatient(%s): %v", tt.id, err)
		}
		if got.ID != tt.wantID || created != tt.wantCreated {
			t.Errorf("CreatePatient(%s) = %s created=%v, want %s created=%v", tt.id, got.ID, created, tt.wantID, tt.wantCreated)
		}
	}

	if _, _, err := s.CreatePatient(ctx, &patient.Patient{ID: "p-1", Name: "Alan", Age: 41}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("reused ID: err = %v, want ErrInvalidState", err)
	}

	all, _ := s.ListPatients(ctx, 1, 10)
	if len(all) != 2 || all[0].ID != "p-3" {
		t.Errorf("ListPatients page = %d entries", len(all))
	}
}

func TestStore_CreatePatientConcurrent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	const workers = 32
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := s.CreatePatient(ctx, &patient.Patient{ID: fmt.Sprintf("p-%d", i), Name: "Ada", Age: 36})
			if err != nil {
				t.Errorf("CreatePatient: %v", err)
				return
			}
			ids <- p.ID
		}()
	}
	wg.Wait()
	close(ids)

	first := ""
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Errorf("got patients %s and %s for the same name and age", first, id)
		}
	}
	if all, _ := s.ListPatients(ctx, 0, 100); len(all) != 1 {
		t.Errorf("stored %d patients, want 1", len(all))
	}
}

func TestStore_SetPatientContact(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_, _, _ = s.CreatePatient(ctx, &patient.Patient{ID: "p-1", Name: "Ada", Age: 36})

	p, ok, err := s.SetPatientContact(ctx, "p-1", "+15550100")
	if err != nil || !ok || p.Contact != "+15550100" {
		t.Fatalf("SetPatientContact = %+v, %v, %v", p, ok, err)
	}
	got, _, _ := s.GetPatient(ctx, "p-1")
	if got.Contact != "+15550100" {
		t.Errorf("stored contact = %q", got.Contact)
	}
	if _, ok, err := s.SetPatientContact(ctx, "missing", "x"); ok || err != nil {
		t.Errorf("missing patient: ok=%v err=%v", ok, err)
	}
}

func pending(id string, offset time.Duration) *notify.Notification {
	return &notify.Notification{
		ID:        id,
		SubjectID: "p-1",
		Message:   "hello",
		Address:   "+15550100",
		Kind:      notify.KindStatusUpdate,
		Status:    notify.StatusPending,
		Attempt:   1,
		CreatedAt: t0.Add(offset),
	}
}

func TestStore_FinalizeNotificationOnce(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	n := pending("n-1", 0)
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	n.Status = notify.StatusFailed
	n.FailureReason = "carrier rejected"
	if err := s.FinalizeNotification(ctx, n); err != nil {
		t.Fatalf("FinalizeNotification: %v", err)
	}

	n.Status = notify.StatusSent
	if err := s.FinalizeNotification(ctx, n); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("second finalize err = %v, want ErrInvalidState", err)
	}

	got, _, _ := s.GetNotification(ctx, "n-1")
	if got.Status != notify.StatusFailed || got.FailureReason != "carrier rejected" {
		t.Errorf("got status=%s reason=%q", got.Status, got.FailureReason)
	}
	if got.SentAt != nil {
		t.Errorf("SentAt = %v, want nil on failure", got.SentAt)
	}

	if err := s.FinalizeNotification(ctx, pending("missing", 0)); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing finalize err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListNotificationsFilter(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	a := pending("a", 0)
	a.CaseID = "c-1"
	b := pending("b", time.Minute)
	c := pending("c", 2*time.Minute)
	c.SubjectID = "p-2"
	for _, n := range []*notify.Notification{a, b, c} {
		_ = s.CreateNotification(ctx, n)
	}
	b.Status = notify.StatusSent
	_ = s.FinalizeNotification(ctx, b)

	tests := []struct {
		name string
		f    notify.Filter
		want []string
	}{
		{"all", notify.Filter{}, []string{"c", "b", "a"}},
		{"subject", notify.Filter{SubjectID: "p-1"}, []string{"b", "a"}},
		{"case", notify.Filter{CaseID: "c-1"}, []string{"a"}},
		{"pending", notify.Filter{Status: notify.StatusPending}, []string{"c", "a"}},
		{"page", notify.Filter{Offset: 1, Limit: 1}, []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.ListNotifications(ctx, tt.f)
			if err != nil {
				t.Fatalf("ListNotifications: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("pos %d = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestStore_RetryBookkeeping(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	failed := pending("n-1", 0)
	_ = s.CreateNotification(ctx, failed)
	failed.Status = notify.StatusFailed
	_ = s.FinalizeNotification(ctx, failed)

	exhausted := pending("n-2", time.Second)
	exhausted.Attempt = 3
	_ = s.CreateNotification(ctx, exhausted)
	exhausted.Status = notify.StatusFailed
	_ = s.FinalizeNotification(ctx, exhausted)

	due, err := s.ListRetryable(ctx, 3, "", 10)
	if err != nil {
		t.Fatalf("ListRetryable: %v", err)
	}
	if len(due) != 1 || due[0].ID != "n-1" {
		t.Fatalf("due = %d entries, want only n-1", len(due))
	}

	retry := pending("n-3", 2*time.Second)
	retry.Attempt = 2
	retry.RetryOf = "n-1"
	if err := s.CreateNotification(ctx, retry); err != nil {
		t.Fatalf("CreateNotification retry: %v", err)
	}
	dup := pending("n-4", 3*time.Second)
	dup.RetryOf = "n-1"
	if err := s.CreateNotification(ctx, dup); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("duplicate retry err = %v, want ErrInvalidState", err)
	}

	due, _ = s.ListRetryable(ctx, 3, "", 10)
	if len(due) != 0 {
		t.Errorf("due after retry = %d, want 0", len(due))
	}
}

func TestStore_ListRetryableCursor(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for i, id := range []string{"n-3", "n-1", "n-2"} {
		n := pending(id, time.Duration(i)*time.Second)
		_ = s.CreateNotification(ctx, n)
		n.Status = notify.StatusFailed
		_ = s.FinalizeNotification(ctx, n)
	}

	tests := []struct {
		after string
		limit int
		want  []string
	}{
		{"", 2, []string{"n-1", "n-2"}},
		{"n-2", 2, []string{"n-3"}},
		{"n-3", 2, nil},
		{"", 0, []string{"n-1", "n-2", "n-3"}},
	}
	for _, tt := range tests {
		got, err := s.ListRetryable(ctx, 3, tt.after, tt.limit)
		if err != nil {
			t.Fatalf("ListRetryable(after=%q): %v", tt.after, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("ListRetryable(after=%q) = %d entries, want %d", tt.after, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("after=%q pos %d = %s, want %s", tt.after, i, got[i].ID, tt.want[i])
			}
		}
	}
}
