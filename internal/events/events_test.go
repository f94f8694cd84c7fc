package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	ev, err := New(CaseCreated, "c-1", map[string]string{"priority": "Urgent"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ev.ID == "" || ev.OccurredAt.IsZero() {
		t.Errorf("ID/OccurredAt not set: %+v", ev)
	}
	if ev.Key != "c-1" || ev.Type != CaseCreated {
		t.Errorf("got key=%q type=%q", ev.Key, ev.Type)
	}
	var data map[string]string
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatalf("Unmarshal data: %v", err)
	}
	if data["priority"] != "Urgent" {
		t.Errorf("data = %v", data)
	}
}

func TestNew_Unmarshalable(t *testing.T) {
	t.Parallel()

	if _, err := New(CaseCreated, "c-1", make(chan int)); err == nil {
		t.Fatal("expected error for unmarshalable data")
	}
}

type errPublisher struct{ err error }

func (p errPublisher) Publish(context.Context, Event) error { return p.err }

func TestMulti(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	boom := errors.New("boom")
	m := Multi{rec, errPublisher{boom}, Nop{}}

	ev, _ := New(NotificationSent, "n-1", nil)
	err := m.Publish(context.Background(), ev)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := rec.Types(); len(got) != 1 || got[0] != NotificationSent {
		t.Errorf("recorder got %v; failures must not stop fan-out", got)
	}

	if err := (Multi{rec, Nop{}}).Publish(context.Background(), ev); err != nil {
		t.Errorf("all-success err = %v, want nil", err)
	}
}
