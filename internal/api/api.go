// Package api exposes the case queue, patient registry and notification
// dispatcher over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/notify"
	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/queue"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

// CaseService defines the case operations the API needs.
type CaseService interface {
	Classify(ctx context.Context, symptoms string) triage.Decision
	Create(ctx context.Context, subjectID, symptoms string) (*queue.Case, error)
	Book(ctx context.Context, d patient.Details, symptoms string) (*queue.Case, *patient.Patient, error)
	Complete(ctx context.Context, id string) (*queue.Case, error)
	Cancel(ctx context.Context, id string) (*queue.Case, error)
	Get(ctx context.Context, id string) (*queue.Case, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*queue.Case, error)
	Pending(ctx context.Context, offset, count int) ([]*queue.Case, error)
	Stats(ctx context.Context) (map[triage.Priority]int, error)
}

// PatientService defines the patient operations the API needs.
type PatientService interface {
	Register(ctx context.Context, d patient.Details) (*patient.Patient, bool, error)
	Get(ctx context.Context, id string) (*patient.Patient, error)
	List(ctx context.Context, offset, limit int) ([]*patient.Patient, error)
	UpdateContact(ctx context.Context, id, contact string) (*patient.Patient, error)
}

// NotificationService defines the notification operations the API needs.
type NotificationService interface {
	Send(ctx context.Context, req notify.Request) (*notify.Notification, error)
	ConfirmationFor(ctx context.Context, caseID string) (*notify.Notification, error)
	StatusUpdateFor(ctx context.Context, caseID string) (*notify.Notification, error)
	Retry(ctx context.Context, id string) (*notify.Notification, error)
	Get(ctx context.Context, id string) (*notify.Notification, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*notify.Notification, error)
	ListByCase(ctx context.Context, caseID string) ([]*notify.Notification, error)
	List(ctx context.Context, offset, limit int) ([]*notify.Notification, error)
	Pending(ctx context.Context, offset, limit int) ([]*notify.Notification, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger        log.Logger
	cases         CaseService
	patients      PatientService
	notifications NotificationService
}

// New creates a new API handler.
func New(logger log.Logger, cases CaseService, patients PatientService, notifications NotificationService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if cases == nil {
		panic(xerrors.New("case service is required"))
	}
	if patients == nil {
		panic(xerrors.New("patient service is required"))
	}
	if notifications == nil {
		panic(xerrors.New("notification service is required"))
	}
	return &API{
		logger:        logger,
		cases:         cases,
		patients:      patients,
		notifications: notifications,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleTriage)

		r.Route("/patients", func(r chi.Router) {
			r.Post("/", a.handleRegisterPatient)
			r.Get("/", a.handleListPatients)
			r.Get("/{id}", a.handleGetPatient)
			r.Patch("/{id}", a.handleUpdatePatient)
			r.Get("/{id}/cases", a.handlePatientCases)
			r.Get("/{id}/notifications", a.handlePatientNotifications)
		})

		r.Route("/cases", func(r chi.Router) {
			r.Post("/", a.handleBookCase)
			r.Get("/", a.handlePendingCases)
			r.Get("/stats", a.handleCaseStats)
			r.Get("/{id}", a.handleGetCase)
			r.Delete("/{id}", a.handleCompleteCase)
			r.Post("/{id}/complete", a.handleCompleteCase)
			r.Post("/{id}/cancel", a.handleCancelCase)
			r.Get("/{id}/notifications", a.handleCaseNotifications)
			r.Post("/{id}/notifications/confirmation", a.handleSendConfirmation)
			r.Post("/{id}/notifications/status-update", a.handleSendStatusUpdate)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", a.handleSendNotification)
			r.Get("/", a.handleListNotifications)
			r.Get("/pending", a.handlePendingNotifications)
			r.Get("/{id}", a.handleGetNotification)
			r.Post("/{id}/retry", a.handleRetryNotification)
		})
	})
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status for err's kind. Internal errors are
// logged and their text is not exposed.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error(), Kind: apperr.Kind(err)}
	if status == http.StatusInternalServerError {
		a.logger.Error(r.Context(), err, msg)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large: %w", apperr.ErrValidation)
		}
		return fmt.Errorf("invalid JSON: %w", apperr.ErrValidation)
	}
	return nil
}

// pageParams reads offset and limit from the query string. Missing values are zero.
func pageParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", name, apperr.ErrValidation)
	}
	return n, nil
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
