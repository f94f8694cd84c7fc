// Package apperr defines the error kinds shared by the queue, patient and
// notification services. Callers wrap a kind with context using %w and test
// for it with errors.Is.
package apperr

import (
	"errors"
	"net/http"

	"github.com/linnemanlabs/go-core/xerrors"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = xerrors.New("validation failed")

	// ErrNotFound marks an unknown case, patient or notification id.
	ErrNotFound = xerrors.New("not found")

	// ErrInvalidState marks a transition attempted from a terminal state.
	ErrInvalidState = xerrors.New("invalid state")

	// ErrAddressUnresolved marks a patient with no deliverable contact address.
	ErrAddressUnresolved = xerrors.New("address unresolved")
)

// Kind returns the short machine-readable name of the error kind wrapped by
// err, or "internal" when err carries none of the known kinds.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrAddressUnresolved):
		return "address_unresolved"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error kind to the HTTP status a transport should answer with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "invalid_state":
		return http.StatusConflict
	case "address_unresolved":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
