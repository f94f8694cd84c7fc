package queue

import (
	"testing"
	"time"
)

func TestStampClock_StrictlyIncreasing(t *testing.T) {
	t.Parallel()

	frozen := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)
	c := newStampClock(func() time.Time { return frozen })

	first := c.Stamp()
	if first.Nanosecond()%1000 != 0 {
		t.Errorf("stamp %v not truncated to microseconds", first)
	}
	prev := first
	for range 100 {
		next := c.Stamp()
		if !next.After(prev) {
			t.Fatalf("stamp %v not after %v", next, prev)
		}
		prev = next
	}
}

func TestStampClock_ClockGoesBackwards(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := newStampClock(func() time.Time { return now })
	a := c.Stamp()
	now = now.Add(-time.Hour)
	b := c.Stamp()
	if !b.After(a) {
		t.Fatalf("stamp went backwards: %v then %v", a, b)
	}
}
