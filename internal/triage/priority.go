package triage

import (
	"fmt"
	"strings"
)

// Priority is the severity class assigned to a case. Lower values are served first.
type Priority int

const (
	// PriorityUnknown is the zero value; it sorts after every known class.
	PriorityUnknown Priority = iota
	PriorityEmergency
	PriorityUrgent
	PriorityRoutine
)

// unknownRank places unrecognized priorities at the end of the queue.
const unknownRank = 4

// Rank is the queue sort weight: Emergency=1, Urgent=2, Routine=3, anything else 4.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency, PriorityUrgent, PriorityRoutine:
		return int(p)
	default:
		return unknownRank
	}
}

// Outranks reports whether p is served strictly before q.
func (p Priority) Outranks(q Priority) bool {
	return p.Rank() < q.Rank()
}

func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "Emergency"
	case PriorityUrgent:
		return "Urgent"
	case PriorityRoutine:
		return "Routine"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts any casing of a known priority name.
func (p *Priority) UnmarshalText(b []byte) error {
	v, ok := ParsePriority(string(b))
	if !ok {
		return fmt.Errorf("unknown priority %q", string(b))
	}
	*p = v
	return nil
}

// ParsePriority maps a label to a Priority. It is lenient about case,
// surrounding whitespace and trailing punctuation since scorers return free text.
func ParsePriority(s string) (Priority, bool) {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!\"'`"))
	switch s {
	case "emergency":
		return PriorityEmergency, true
	case "urgent":
		return PriorityUrgent, true
	case "routine":
		return PriorityRoutine, true
	default:
		return PriorityUnknown, false
	}
}
