package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/events"
	"github.com/linnemanlabs/carequeue/internal/memstore"
	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/queue"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

type fixture struct {
	svc      *queue.Service
	patients *patient.Registry
	rec      *events.Recorder
	subject  string
}

func newFixture(t *testing.T, hooks queue.Hooks) *fixture {
	t.Helper()
	store := memstore.New()
	reg := patient.NewRegistry(store)
	rec := &events.Recorder{}
	cls := triage.NewClassifier(triage.DefaultVocabulary(), log.Nop())
	svc := queue.NewService(store, cls, reg, rec, log.Nop(), hooks)

	p, _, err := reg.Register(context.Background(), patient.Details{Name: "Ada", Age: 36, Contact: "+15550100"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return &fixture{svc: svc, patients: reg, rec: rec, subject: p.ID}
}

func TestService_PendingOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()
	for _, text := range []string{"Just a checkup", "High fever", "Heart attack!"} {
		if _, err := f.svc.Create(ctx, f.subject, text); err != nil {
			t.Fatalf("Create(%q): %v", text, err)
		}
	}

	got, err := f.svc.Pending(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	want := []triage.Priority{triage.PriorityEmergency, triage.PriorityUrgent, triage.PriorityRoutine}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, p := range want {
		if got[i].Priority != p {
			t.Errorf("pos %d priority = %v, want %v", i, got[i].Priority, p)
		}
	}
}

func TestService_SamePriorityArrivalOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()
	var created []string
	for range 5 {
		c, err := f.svc.Create(ctx, f.subject, "fever")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		created = append(created, c.ID)
	}

	got, _ := f.svc.Pending(ctx, 0, 0)
	for i := range created {
		if got[i].ID != created[i] {
			t.Fatalf("pos %d = %s, want %s", i, got[i].ID, created[i])
		}
		if i > 0 && !got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Errorf("createdAt not strictly increasing at %d", i)
		}
	}
}

func TestService_CreateValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.subject, "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank symptoms err = %v, want ErrValidation", err)
	}
	if _, err := f.svc.Create(ctx, "nobody", "fever"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown subject err = %v, want ErrNotFound", err)
	}
	if len(f.rec.Events()) != 0 {
		t.Errorf("events published for rejected creates: %v", f.rec.Types())
	}
}

func TestService_CompleteTwice(t *testing.T) {
	t.Parallel()

	var results []string
	f := newFixture(t, queue.Hooks{
		OnTransition: func(_ queue.Status, result string) { results = append(results, result) },
	})
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.subject, "Heart attack!")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done, err := f.svc.Complete(ctx, c.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != queue.StatusCompleted || done.ClosedAt.IsZero() {
		t.Errorf("status=%s closedAt=%v", done.Status, done.ClosedAt)
	}
	if done.Priority != c.Priority || done.CreatedAt != c.CreatedAt {
		t.Error("immutable fields changed on transition")
	}

	if _, err := f.svc.Complete(ctx, c.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("second Complete err = %v, want ErrInvalidState", err)
	}
	if _, err := f.svc.Cancel(ctx, c.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("Cancel after Complete err = %v, want ErrInvalidState", err)
	}
	if _, err := f.svc.Cancel(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Cancel missing err = %v, want ErrNotFound", err)
	}

	want := []string{"ok", "invalid_state", "invalid_state", "not_found"}
	if len(results) != len(want) {
		t.Fatalf("hook results = %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("hook result %d = %q, want %q", i, results[i], want[i])
		}
	}
}

func TestService_CompleteOnlyCaseEmptiesQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()
	c, _ := f.svc.Create(ctx, f.subject, "Just a checkup")
	if _, err := f.svc.Complete(ctx, c.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := f.svc.Pending(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Pending = %d cases, want 0", len(got))
	}

	stored, err := f.svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != queue.StatusCompleted {
		t.Errorf("Get status = %s, want completed", stored.Status)
	}
}

func TestService_RacingCompleteCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()
	c, _ := f.svc.Create(ctx, f.subject, "fever")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.svc.Complete(ctx, c.ID) }()
	go func() { defer wg.Done(); _, errs[1] = f.svc.Cancel(ctx, c.ID) }()
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, apperr.ErrInvalidState):
			t.Errorf("loser err = %v, want ErrInvalidState", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successes = %d, want 1", ok)
	}

	stored, _ := f.svc.Get(ctx, c.ID)
	if (errs[0] == nil) != (stored.Status == queue.StatusCompleted) {
		t.Errorf("stored status %s does not match winner", stored.Status)
	}
}

func TestService_PendingPaging(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()
	for range 3 {
		_, _ = f.svc.Create(ctx, f.subject, "checkup")
	}

	if _, err := f.svc.Pending(ctx, -1, 10); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("negative offset err = %v, want ErrValidation", err)
	}
	if got, _ := f.svc.Pending(ctx, 0, 0); len(got) != 3 {
		t.Errorf("count=0 returned %d, want default page", len(got))
	}
	if got, _ := f.svc.Pending(ctx, 2, 10); len(got) != 1 {
		t.Errorf("offset=2 returned %d, want 1", len(got))
	}
	if got, _ := f.svc.Pending(ctx, 5, 10); len(got) != 0 {
		t.Errorf("offset past end returned %d, want 0", len(got))
	}
}

func TestService_Book(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()

	c, p, err := f.svc.Book(ctx, patient.Details{Name: "Ada", Age: 36}, "chest pain")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if p.ID != f.subject {
		t.Errorf("Book created a new patient %s, want existing %s", p.ID, f.subject)
	}
	if c.SubjectID != p.ID || c.Priority != triage.PriorityEmergency {
		t.Errorf("case = %+v", c)
	}

	_, p2, err := f.svc.Book(ctx, patient.Details{Name: "Grace", Age: 85}, "checkup")
	if err != nil {
		t.Fatalf("Book new patient: %v", err)
	}
	if p2.ID == f.subject || p2.Gender != patient.DefaultGender {
		t.Errorf("new patient = %+v", p2)
	}

	if _, _, err := f.svc.Book(ctx, patient.Details{Name: "", Age: 1}, "fever"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank name err = %v, want ErrValidation", err)
	}
}

func TestService_ListBySubjectAndStats(t *testing.T) {
	t.Parallel()

	var observed map[triage.Priority]int
	f := newFixture(t, queue.Hooks{OnStats: func(c map[triage.Priority]int) { observed = c }})
	ctx := context.Background()
	a, _ := f.svc.Create(ctx, f.subject, "bleeding")
	b, _ := f.svc.Create(ctx, f.subject, "checkup")
	_, _ = f.svc.Cancel(ctx, a.ID)

	list, err := f.svc.ListBySubject(ctx, f.subject)
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID {
		t.Errorf("ListBySubject not newest first")
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := map[triage.Priority]int{
		triage.PriorityEmergency: 0,
		triage.PriorityUrgent:    0,
		triage.PriorityRoutine:   1,
	}
	for p, n := range want {
		if stats[p] != n {
			t.Errorf("stats[%v] = %d, want %d", p, stats[p], n)
		}
	}
	if observed == nil {
		t.Error("OnStats hook not called")
	}
}

func TestService_PublishesLifecycleEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, queue.Hooks{})
	ctx := context.Background()
	a, _ := f.svc.Create(ctx, f.subject, "fever")
	b, _ := f.svc.Create(ctx, f.subject, "fever")
	_, _ = f.svc.Complete(ctx, a.ID)
	_, _ = f.svc.Cancel(ctx, b.ID)

	want := []events.Type{events.CaseCreated, events.CaseCreated, events.CaseCompleted, events.CaseCancelled}
	got := f.rec.Types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if f.rec.Events()[2].Key != a.ID {
		t.Errorf("completed event key = %s, want %s", f.rec.Events()[2].Key, a.ID)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func TestService_PublishFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	reg := patient.NewRegistry(store)
	p, _, _ := reg.Register(context.Background(), patient.Details{Name: "Ada", Age: 36})
	svc := queue.NewService(store, triage.NewClassifier(triage.DefaultVocabulary(), nil), reg, failingPublisher{}, nil, queue.Hooks{})

	c, err := svc.Create(context.Background(), p.ID, "fever")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Complete(context.Background(), c.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}
