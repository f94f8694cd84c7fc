// Package patient is the person registry behind queued cases. It owns patient
// identity and resolves a patient to a deliverable contact address.
package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/carequeue/internal/apperr"
)

// DefaultGender matches the registry default when none is supplied.
const DefaultGender = "Other"

// Patient is a person who can own cases and receive notifications.
type Patient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Gender    string    `json:"gender"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
}

// Details is the caller-supplied identity used to register a patient.
type Details struct {
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Gender  string `json:"gender,omitempty"`
	Contact string `json:"contact"`
}

// Validate rejects details that cannot identify a patient.
func (d Details) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("patient name is required: %w", apperr.ErrValidation)
	}
	if d.Age < 0 || d.Age > 150 {
		return fmt.Errorf("patient age %d out of range: %w", d.Age, apperr.ErrValidation)
	}
	return nil
}

// Store is the persistence interface for patients.
type Store interface {
	GetPatient(ctx context.Context, id string) (*Patient, bool, error)
	// CreatePatient inserts p unless a patient with the same name and age
	// already exists, in which case that patient is returned with created false.
	// The check and the insert are atomic.
	CreatePatient(ctx context.Context, p *Patient) (stored *Patient, created bool, err error)
	// SetPatientContact replaces the contact of an existing patient.
	SetPatientContact(ctx context.Context, id, contact string) (*Patient, bool, error)
	ListPatients(ctx context.Context, offset, limit int) ([]*Patient, error)
}

// Registry is the business boundary for patient operations.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Register returns the existing patient matching name and age, or creates one.
// The second return value reports whether a new patient was created.
func (r *Registry) Register(ctx context.Context, d Details) (*Patient, bool, error) {
	if err := d.Validate(); err != nil {
		return nil, false, err
	}
	gender := strings.TrimSpace(d.Gender)
	if gender == "" {
		gender = DefaultGender
	}
	return r.store.CreatePatient(ctx, &Patient{
		ID:        ulid.Make().String(),
		Name:      strings.TrimSpace(d.Name),
		Age:       d.Age,
		Gender:    gender,
		Contact:   strings.TrimSpace(d.Contact),
		CreatedAt: r.now().UTC(),
	})
}

// UpdateContact replaces a patient's contact address. Notifications sent or
// retried afterwards resolve to the new address.
func (r *Registry) UpdateContact(ctx context.Context, id, contact string) (*Patient, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, fmt.Errorf("patient contact is required: %w", apperr.ErrValidation)
	}
	p, ok, err := r.store.SetPatientContact(ctx, id, contact)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

// Get returns a patient or an apperr.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Patient, error) {
	p, ok, err := r.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

// List returns patients in registration order.
func (r *Registry) List(ctx context.Context, offset, limit int) ([]*Patient, error) {
	return r.store.ListPatients(ctx, offset, limit)
}

// ResolveAddress returns the patient's contact address. An unknown patient is
// apperr.ErrNotFound; a known patient without a contact is apperr.ErrAddressUnresolved.
func (r *Registry) ResolveAddress(ctx context.Context, id string) (string, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(p.Contact) == "" {
		return "", fmt.Errorf("patient %s has no contact: %w", id, apperr.ErrAddressUnresolved)
	}
	return p.Contact, nil
}
