package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/events"
	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

const (
	// DefaultPageSize is used when a caller asks for a non-positive count.
	DefaultPageSize = 100

	// MaxPageSize caps a single read of the queue.
	MaxPageSize = 500
)

// Classifier assigns a priority to symptom text.
type Classifier interface {
	Classify(ctx context.Context, text string) triage.Decision
}

// Patients is the subset of the patient registry the queue needs.
type Patients interface {
	Get(ctx context.Context, id string) (*patient.Patient, error)
	Register(ctx context.Context, d patient.Details) (*patient.Patient, bool, error)
}

// Hooks are optional callbacks for instrumentation. Nil fields are skipped.
type Hooks struct {
	OnCreate     func(p triage.Priority)
	OnTransition func(to Status, result string)
	OnStats      func(counts map[triage.Priority]int)
}

// Service is the business boundary for case operations.
type Service struct {
	store      Store
	classifier Classifier
	patients   Patients
	publisher  events.Publisher
	logger     log.Logger
	hooks      Hooks
	clock      *stampClock
}

// NewService creates a new queue service. publisher may be nil.
func NewService(store Store, classifier Classifier, patients Patients, publisher events.Publisher, logger log.Logger, hooks Hooks) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		store:      store,
		classifier: classifier,
		patients:   patients,
		publisher:  publisher,
		logger:     logger,
		hooks:      hooks,
		clock:      newStampClock(time.Now),
	}
}

// Classify exposes the classifier without creating a case.
func (s *Service) Classify(ctx context.Context, symptoms string) triage.Decision {
	return s.classifier.Classify(ctx, symptoms)
}

// Create classifies the symptoms and persists a new Queued case for the patient.
func (s *Service) Create(ctx context.Context, subjectID, symptoms string) (*Case, error) {
	if strings.TrimSpace(symptoms) == "" {
		return nil, fmt.Errorf("symptoms are required: %w", apperr.ErrValidation)
	}
	if _, err := s.patients.Get(ctx, subjectID); err != nil {
		return nil, err
	}

	d := s.classifier.Classify(ctx, symptoms)
	c := &Case{
		ID:          ulid.Make().String(),
		SubjectID:   subjectID,
		SymptomText: symptoms,
		Priority:    d.Priority,
		Scored:      d.Source == triage.SourceScorer,
		Status:      StatusQueued,
		CreatedAt:   s.clock.Stamp(),
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}

	if s.hooks.OnCreate != nil {
		s.hooks.OnCreate(c.Priority)
	}
	s.publish(ctx, events.CaseCreated, c)

	s.logger.Info(ctx, "case queued",
		"case_id", c.ID,
		"patient_id", c.SubjectID,
		"priority", c.Priority.String(),
		"source", string(d.Source),
	)
	return c, nil
}

// Book registers the patient if needed and queues a case for them.
func (s *Service) Book(ctx context.Context, d patient.Details, symptoms string) (*Case, *patient.Patient, error) {
	if strings.TrimSpace(symptoms) == "" {
		return nil, nil, fmt.Errorf("symptoms are required: %w", apperr.ErrValidation)
	}
	p, created, err := s.patients.Register(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	if created {
		s.logger.Info(ctx, "patient registered", "patient_id", p.ID)
	}
	c, err := s.Create(ctx, p.ID, symptoms)
	if err != nil {
		return nil, nil, err
	}
	return c, p, nil
}

// Complete moves a Queued case to Completed.
func (s *Service) Complete(ctx context.Context, id string) (*Case, error) {
	return s.transition(ctx, id, StatusCompleted, events.CaseCompleted)
}

// Cancel moves a Queued case to Cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*Case, error) {
	return s.transition(ctx, id, StatusCancelled, events.CaseCancelled)
}

func (s *Service) transition(ctx context.Context, id string, to Status, evType events.Type) (*Case, error) {
	c, err := s.store.TransitionCase(ctx, id, to, s.clock.Stamp())
	if err != nil {
		if s.hooks.OnTransition != nil {
			s.hooks.OnTransition(to, apperr.Kind(err))
		}
		return nil, err
	}
	if s.hooks.OnTransition != nil {
		s.hooks.OnTransition(to, "ok")
	}
	s.publish(ctx, evType, c)
	s.logger.Info(ctx, "case closed", "case_id", c.ID, "status", string(c.Status))
	return c, nil
}

// Get returns a case by id or an apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Case, error) {
	c, ok, err := s.store.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, apperr.ErrNotFound)
	}
	return c, nil
}

// ListBySubject returns every case of a patient, newest first.
func (s *Service) ListBySubject(ctx context.Context, subjectID string) ([]*Case, error) {
	return s.store.ListCasesBySubject(ctx, subjectID)
}

// Pending returns Queued cases in serving order, skipping offset and returning at most count.
func (s *Service) Pending(ctx context.Context, offset, count int) ([]*Case, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset %d must not be negative: %w", offset, apperr.ErrValidation)
	}
	if count <= 0 {
		count = DefaultPageSize
	}
	if count > MaxPageSize {
		count = MaxPageSize
	}
	return s.store.ListQueued(ctx, offset, count)
}

// Stats returns the number of Queued cases per priority. Every known priority is present.
func (s *Service) Stats(ctx context.Context) (map[triage.Priority]int, error) {
	counts, err := s.store.CountQueued(ctx)
	if err != nil {
		return nil, err
	}
	out := map[triage.Priority]int{
		triage.PriorityEmergency: 0,
		triage.PriorityUrgent:    0,
		triage.PriorityRoutine:   0,
	}
	for p, n := range counts {
		out[p] += n
	}
	if s.hooks.OnStats != nil {
		s.hooks.OnStats(out)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, c *Case) {
	ev, err := events.New(t, c.ID, c)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Error(ctx, err, "failed to publish case event", "case_id", c.ID, "event", string(t))
	}
}
