package patient_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/memstore"
	"github.com/linnemanlabs/carequeue/internal/patient"
)

func TestDetailsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		d       patient.Details
		wantErr bool
	}{
		{"ok", patient.Details{Name: "Ada", Age: 36}, false},
		{"newborn", patient.Details{Name: "Baby", Age: 0}, false},
		{"blank name", patient.Details{Name: "  ", Age: 36}, true},
		{"negative age", patient.Details{Name: "Ada", Age: -1}, true},
		{"implausible age", patient.Details{Name: "Ada", Age: 200}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegistry_RegisterFindOrCreate(t *testing.T) {
	t.Parallel()

	r := patient.NewRegistry(memstore.New())
	ctx := context.Background()

	p, created, err := r.Register(ctx, patient.Details{Name: " Ada ", Age: 36, Contact: "+15550100"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !created || p.ID == "" {
		t.Fatalf("created=%v id=%q", created, p.ID)
	}
	if p.Name != "Ada" || p.Gender != patient.DefaultGender {
		t.Errorf("name=%q gender=%q", p.Name, p.Gender)
	}

	again, created, err := r.Register(ctx, patient.Details{Name: "Ada", Age: 36, Gender: "F"})
	if err != nil {
		t.Fatalf("Register again: %v", err)
	}
	if created || again.ID != p.ID {
		t.Errorf("expected existing patient %s, got %s (created=%v)", p.ID, again.ID, created)
	}

	other, created, _ := r.Register(ctx, patient.Details{Name: "Ada", Age: 37})
	if !created || other.ID == p.ID {
		t.Error("different age should register a new patient")
	}

	list, err := r.List(ctx, 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != p.ID {
		t.Errorf("List = %d patients", len(list))
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	t.Parallel()

	r := patient.NewRegistry(memstore.New())
	if _, err := r.Get(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_ResolveAddress(t *testing.T) {
	t.Parallel()

	r := patient.NewRegistry(memstore.New())
	ctx := context.Background()
	withContact, _, _ := r.Register(ctx, patient.Details{Name: "Ada", Age: 36, Contact: "+15550100"})
	noContact, _, _ := r.Register(ctx, patient.Details{Name: "Grace", Age: 85})

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr error
	}{
		{"resolved", withContact.ID, "+15550100", nil},
		{"blank contact", noContact.ID, "", apperr.ErrAddressUnresolved},
		{"unknown", "missing", "", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.ResolveAddress(ctx, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveAddress: %v", err)
			}
			if got != tt.want {
				t.Errorf("address = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry_RegisterConcurrent(t *testing.T) {
	t.Parallel()

	r := patient.NewRegistry(memstore.New())
	ctx := context.Background()

	const workers = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		created int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, isNew, err := r.Register(ctx, patient.Details{Name: "Ada", Age: 36})
			if err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[p.ID] = true
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 || created != 1 {
		t.Errorf("got %d distinct patients and %d creations, want 1 and 1", len(ids), created)
	}
}

func TestRegistry_UpdateContact(t *testing.T) {
	t.Parallel()

	r := patient.NewRegistry(memstore.New())
	ctx := context.Background()
	p, _, _ := r.Register(ctx, patient.Details{Name: "Grace", Age: 85})

	if _, err := r.ResolveAddress(ctx, p.ID); !errors.Is(err, apperr.ErrAddressUnresolved) {
		t.Fatalf("before update: err = %v, want ErrAddressUnresolved", err)
	}

	updated, err := r.UpdateContact(ctx, p.ID, " +15550142 ")
	if err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	if updated.Contact != "+15550142" {
		t.Errorf("contact = %q, want trimmed", updated.Contact)
	}
	if addr, err := r.ResolveAddress(ctx, p.ID); err != nil || addr != "+15550142" {
		t.Errorf("ResolveAddress = %q, %v", addr, err)
	}

	tests := []struct {
		name    string
		id      string
		contact string
		wantErr error
	}{
		{"blank contact", p.ID, "   ", apperr.ErrValidation},
		{"unknown patient", "missing", "+15550100", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := r.UpdateContact(ctx, tt.id, tt.contact); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
