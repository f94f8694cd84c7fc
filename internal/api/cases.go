package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/notify"
	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/queue"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

type triageRequest struct {
	Symptoms string `json:"symptoms"`
}

type triageResponse struct {
	Priority triage.Priority `json:"priority"`
	Source   triage.Source   `json:"source"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err, "decode triage request")
		return
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		a.writeError(w, r, fmt.Errorf("symptoms are required: %w", apperr.ErrValidation), "triage")
		return
	}

	d := a.cases.Classify(r.Context(), req.Symptoms)
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("carequeue.triage.priority", d.Priority.String()),
		attribute.String("carequeue.triage.source", string(d.Source)),
	)
	writeJSON(w, http.StatusOK, triageResponse{Priority: d.Priority, Source: d.Source})
}

// bookRequest queues a case either for an existing patient (PatientID) or
// for the patient described by Patient, registering them when unknown.
type bookRequest struct {
	PatientID string           `json:"patient_id,omitempty"`
	Patient   *patient.Details `json:"patient,omitempty"`
	Symptoms  string           `json:"symptoms"`
	Confirm   bool             `json:"confirm,omitempty"`
}

type bookResponse struct {
	Case         *queue.Case          `json:"case"`
	Patient      *patient.Patient     `json:"patient,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

func (a *API) handleBookCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req bookRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err, "decode booking")
		return
	}

	var resp bookResponse
	switch {
	case req.PatientID != "" && req.Patient != nil:
		a.writeError(w, r, fmt.Errorf("patient_id and patient are mutually exclusive: %w", apperr.ErrValidation), "book case")
		return
	case req.PatientID != "":
		c, err := a.cases.Create(ctx, req.PatientID, req.Symptoms)
		if err != nil {
			a.writeError(w, r, err, "create case")
			return
		}
		resp.Case = c
	case req.Patient != nil:
		c, p, err := a.cases.Book(ctx, *req.Patient, req.Symptoms)
		if err != nil {
			a.writeError(w, r, err, "book case")
			return
		}
		resp.Case, resp.Patient = c, p
	default:
		a.writeError(w, r, fmt.Errorf("patient_id or patient is required: %w", apperr.ErrValidation), "book case")
		return
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("carequeue.case.id", resp.Case.ID),
		attribute.String("carequeue.case.priority", resp.Case.Priority.String()),
	)

	if req.Confirm {
		// The case exists whatever happens to the confirmation.
		n, err := a.notifications.ConfirmationFor(ctx, resp.Case.ID)
		if err != nil {
			a.logger.Warn(ctx, "booking confirmation not sent", "case_id", resp.Case.ID, "error", err)
		}
		resp.Notification = n
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handlePendingCases(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		a.writeError(w, r, err, "pending cases")
		return
	}
	cases, err := a.cases.Pending(r.Context(), offset, limit)
	if err != nil {
		a.writeError(w, r, err, "pending cases")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cases))
}

type statsResponse struct {
	Queued map[triage.Priority]int `json:"queued"`
	Total  int                     `json:"total"`
}

func (a *API) handleCaseStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.cases.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err, "case stats")
		return
	}
	resp := statsResponse{Queued: counts}
	for _, n := range counts {
		resp.Total += n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("carequeue.case.id", id))

	c, err := a.cases.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "get case")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleCompleteCase(w http.ResponseWriter, r *http.Request) {
	a.transitionCase(w, r, a.cases.Complete)
}

func (a *API) handleCancelCase(w http.ResponseWriter, r *http.Request) {
	a.transitionCase(w, r, a.cases.Cancel)
}

func (a *API) transitionCase(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*queue.Case, error)) {
	id := chi.URLParam(r, "id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("carequeue.case.id", id))

	c, err := fn(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "transition case")
		return
	}
	span.SetAttributes(attribute.String("carequeue.case.status", string(c.Status)))
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleCaseNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ns, err := a.notifications.ListByCase(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "case notifications")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ns))
}

func (a *API) handleSendConfirmation(w http.ResponseWriter, r *http.Request) {
	a.sendForCase(w, r, a.notifications.ConfirmationFor)
}

func (a *API) handleSendStatusUpdate(w http.ResponseWriter, r *http.Request) {
	a.sendForCase(w, r, a.notifications.StatusUpdateFor)
}

func (a *API) sendForCase(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, caseID string) (*notify.Notification, error)) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("carequeue.case.id", id))

	n, err := fn(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "send case notification")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}
