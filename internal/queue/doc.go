// Package queue owns triage cases and their lifecycle, and derives the
// priority-ordered view of cases still waiting to be served.
package queue
