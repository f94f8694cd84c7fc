package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/carequeue/internal/notify"
)

// handleSendNotification answers 201 for every recorded attempt, including
// ones whose delivery failed. The status field carries the outcome.
func (a *API) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err, "decode notification")
		return
	}

	n, err := a.notifications.Send(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err, "send notification")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("carequeue.notification.id", n.ID),
		attribute.String("carequeue.notification.status", string(n.Status)),
	)
	writeJSON(w, http.StatusCreated, n)
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		a.writeError(w, r, err, "list notifications")
		return
	}
	ns, err := a.notifications.List(r.Context(), offset, limit)
	if err != nil {
		a.writeError(w, r, err, "list notifications")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ns))
}

func (a *API) handlePendingNotifications(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		a.writeError(w, r, err, "pending notifications")
		return
	}
	ns, err := a.notifications.Pending(r.Context(), offset, limit)
	if err != nil {
		a.writeError(w, r, err, "pending notifications")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ns))
}

func (a *API) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("carequeue.notification.id", id))

	n, err := a.notifications.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "get notification")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *API) handleRetryNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("carequeue.notification.retry_of", id))

	n, err := a.notifications.Retry(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "retry notification")
		return
	}
	span.SetAttributes(
		attribute.String("carequeue.notification.id", n.ID),
		attribute.String("carequeue.notification.status", string(n.Status)),
	)
	writeJSON(w, http.StatusCreated, n)
}
