package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/queue"
)

func (a *API) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var d patient.Details
	if err := decodeBody(r, &d); err != nil {
		a.writeError(w, r, err, "decode patient")
		return
	}

	p, created, err := a.patients.Register(r.Context(), d)
	if err != nil {
		a.writeError(w, r, err, "register patient")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("carequeue.patient.id", p.ID),
		attribute.Bool("carequeue.patient.created", created),
	)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, p)
}

func (a *API) handleListPatients(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		a.writeError(w, r, err, "list patients")
		return
	}
	ps, err := a.patients.List(r.Context(), offset, limit)
	if err != nil {
		a.writeError(w, r, err, "list patients")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ps))
}

type patientResponse struct {
	*patient.Patient
	Cases []*queue.Case `json:"cases"`
}

func (a *API) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("carequeue.patient.id", id))

	p, err := a.patients.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "get patient")
		return
	}
	cases, err := a.cases.ListBySubject(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "list patient cases")
		return
	}
	writeJSON(w, http.StatusOK, patientResponse{Patient: p, Cases: nonNil(cases)})
}

type updatePatientRequest struct {
	Contact string `json:"contact"`
}

func (a *API) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("carequeue.patient.id", id))

	var req updatePatientRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err, "decode patient update")
		return
	}
	p, err := a.patients.UpdateContact(r.Context(), id, req.Contact)
	if err != nil {
		a.writeError(w, r, err, "update patient")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handlePatientCases(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.patients.Get(r.Context(), id); err != nil {
		a.writeError(w, r, err, "get patient")
		return
	}
	cases, err := a.cases.ListBySubject(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "list patient cases")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cases))
}

func (a *API) handlePatientNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.patients.Get(r.Context(), id); err != nil {
		a.writeError(w, r, err, "get patient")
		return
	}
	ns, err := a.notifications.ListBySubject(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "list patient notifications")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ns))
}
