package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/events"
	"github.com/linnemanlabs/carequeue/internal/queue"
)

const (
	// DefaultPageSize is used when a caller asks for a non-positive limit.
	DefaultPageSize = 100

	// MaxPageSize caps a single listing.
	MaxPageSize = 500
)

// Cases looks up the case a notification refers to.
type Cases interface {
	Get(ctx context.Context, id string) (*queue.Case, error)
}

// Resolver maps a patient to a deliverable contact address.
type Resolver interface {
	ResolveAddress(ctx context.Context, subjectID string) (string, error)
}

// Request is a caller's ask to notify a patient.
type Request struct {
	SubjectID string `json:"patient_id"`
	CaseID    string `json:"case_id,omitempty"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
}

// Hooks are optional callbacks for instrumentation. Nil fields are skipped.
type Hooks struct {
	OnDelivery func(channel string, status Status, seconds float64)
	OnRetry    func(result string)
}

// Dispatcher records notifications and delivers them through a Channel.
type Dispatcher struct {
	store     Store
	cases     Cases
	resolver  Resolver
	channel   Channel
	publisher events.Publisher
	logger    log.Logger
	hooks     Hooks
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. publisher and logger may be nil.
func NewDispatcher(store Store, cases Cases, resolver Resolver, channel Channel, publisher events.Publisher, logger log.Logger, hooks Hooks) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Dispatcher{
		store:     store,
		cases:     cases,
		resolver:  resolver,
		channel:   channel,
		publisher: publisher,
		logger:    logger,
		hooks:     hooks,
		now:       time.Now,
	}
}

// Send resolves the patient's address, records a Pending notification,
// attempts delivery once and records the outcome.
//
// A delivery failure is not an error: the returned notification is Failed
// with a reason. Errors are returned only for invalid requests, unknown
// references, unresolvable addresses and storage failures.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Notification, error) {
	if strings.TrimSpace(req.SubjectID) == "" {
		return nil, fmt.Errorf("patient_id is required: %w", apperr.ErrValidation)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required: %w", apperr.ErrValidation)
	}
	if req.Kind == "" {
		req.Kind = KindStatusUpdate
	}
	if req.CaseID != "" {
		c, err := d.cases.Get(ctx, req.CaseID)
		if err != nil {
			return nil, err
		}
		if c.SubjectID != req.SubjectID {
			return nil, fmt.Errorf("case %s does not belong to patient %s: %w", req.CaseID, req.SubjectID, apperr.ErrValidation)
		}
	}
	return d.dispatch(ctx, req, 1, "")
}

// ConfirmationFor sends the booking confirmation for a case.
func (d *Dispatcher) ConfirmationFor(ctx context.Context, caseID string) (*Notification, error) {
	c, err := d.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return d.Send(ctx, Request{
		SubjectID: c.SubjectID,
		CaseID:    c.ID,
		Message:   ConfirmationMessage(c),
		Kind:      KindConfirmation,
	})
}

// StatusUpdateFor tells the patient the current status of a case.
func (d *Dispatcher) StatusUpdateFor(ctx context.Context, caseID string) (*Notification, error) {
	c, err := d.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return d.Send(ctx, Request{
		SubjectID: c.SubjectID,
		CaseID:    c.ID,
		Message:   StatusUpdateMessage(c),
		Kind:      KindStatusUpdate,
	})
}

// ConfirmationMessage is the default text sent when a case is booked.
func ConfirmationMessage(c *queue.Case) string {
	return fmt.Sprintf("Your appointment has been confirmed. Triage Level: %s. Please arrive on time.", c.Priority)
}

// StatusUpdateMessage is the default text describing a case's status.
func StatusUpdateMessage(c *queue.Case) string {
	return fmt.Sprintf("Status update: Your appointment status is %s.", c.Status.Label())
}

// Retry re-sends a Failed notification as a new record linked to the original.
// The address is resolved again so a corrected contact is picked up.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*Notification, error) {
	orig, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if orig.Status != StatusFailed {
		d.retried(apperr.Kind(apperr.ErrInvalidState))
		return nil, fmt.Errorf("notification %s is %s, only failed notifications can be retried: %w", id, orig.Status, apperr.ErrInvalidState)
	}
	n, err := d.dispatch(ctx, Request{
		SubjectID: orig.SubjectID,
		CaseID:    orig.CaseID,
		Message:   orig.Message,
		Kind:      orig.Kind,
	}, orig.Attempt+1, orig.ID)
	if err != nil {
		d.retried(apperr.Kind(err))
		return nil, err
	}
	d.retried(string(n.Status))
	return n, nil
}

func (d *Dispatcher) retried(result string) {
	if d.hooks.OnRetry != nil {
		d.hooks.OnRetry(result)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request, attempt int, retryOf string) (*Notification, error) {
	addr, err := d.resolver.ResolveAddress(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		ID:        ulid.Make().String(),
		SubjectID: req.SubjectID,
		CaseID:    req.CaseID,
		Message:   req.Message,
		Address:   addr,
		Kind:      req.Kind,
		Status:    StatusPending,
		Attempt:   attempt,
		RetryOf:   retryOf,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	// Once the Pending record exists the outcome must be recorded even if the
	// caller goes away.
	dctx := context.WithoutCancel(ctx)

	start := time.Now()
	out := d.channel.Deliver(dctx, n.Address, n.Message)
	elapsed := time.Since(start).Seconds()

	if out.Delivered {
		at := d.now().UTC()
		n.Status = StatusSent
		n.SentAt = &at
	} else {
		n.Status = StatusFailed
		n.FailureReason = out.Reason
		if n.FailureReason == "" {
			n.FailureReason = "delivery failed"
		}
	}
	if err := d.store.FinalizeNotification(dctx, n); err != nil {
		d.logger.Error(dctx, err, "failed to record delivery outcome", "notification_id", n.ID, "status", string(n.Status))
		return nil, fmt.Errorf("finalize notification %s: %w", n.ID, err)
	}

	if d.hooks.OnDelivery != nil {
		d.hooks.OnDelivery(d.channel.Name(), n.Status, elapsed)
	}

	evType := events.NotificationSent
	if n.Status == StatusFailed {
		evType = events.NotificationFailed
		d.logger.Warn(dctx, "notification delivery failed",
			"notification_id", n.ID,
			"patient_id", n.SubjectID,
			"attempt", n.Attempt,
			"reason", n.FailureReason,
		)
	} else {
		d.logger.Info(dctx, "notification sent",
			"notification_id", n.ID,
			"patient_id", n.SubjectID,
			"kind", n.Kind,
			"attempt", n.Attempt,
		)
	}
	d.publish(dctx, evType, n)
	return n, nil
}

// Get returns a notification by id or an apperr.ErrNotFound.
func (d *Dispatcher) Get(ctx context.Context, id string) (*Notification, error) {
	n, ok, err := d.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

// ListBySubject returns a patient's notifications, newest first.
func (d *Dispatcher) ListBySubject(ctx context.Context, subjectID string) ([]*Notification, error) {
	return d.store.ListNotifications(ctx, Filter{SubjectID: subjectID})
}

// ListByCase returns the notifications about a case, newest first.
func (d *Dispatcher) ListByCase(ctx context.Context, caseID string) ([]*Notification, error) {
	if _, err := d.cases.Get(ctx, caseID); err != nil {
		return nil, err
	}
	return d.store.ListNotifications(ctx, Filter{CaseID: caseID})
}

// List pages through every notification, newest first.
func (d *Dispatcher) List(ctx context.Context, offset, limit int) ([]*Notification, error) {
	f, err := page(Filter{}, offset, limit)
	if err != nil {
		return nil, err
	}
	return d.store.ListNotifications(ctx, f)
}

// Pending returns notifications whose delivery outcome was never recorded.
func (d *Dispatcher) Pending(ctx context.Context, offset, limit int) ([]*Notification, error) {
	f, err := page(Filter{Status: StatusPending}, offset, limit)
	if err != nil {
		return nil, err
	}
	return d.store.ListNotifications(ctx, f)
}

func page(f Filter, offset, limit int) (Filter, error) {
	if offset < 0 {
		return f, fmt.Errorf("offset %d must not be negative: %w", offset, apperr.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	f.Offset, f.Limit = offset, limit
	return f, nil
}

func (d *Dispatcher) publish(ctx context.Context, t events.Type, n *Notification) {
	ev, err := events.New(t, n.ID, n)
	if err == nil {
		err = d.publisher.Publish(ctx, ev)
	}
	if err != nil {
		d.logger.Error(ctx, err, "failed to publish notification event", "notification_id", n.ID, "event", string(t))
	}
}
