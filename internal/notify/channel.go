package notify

import (
	"context"

	"github.com/linnemanlabs/go-core/log"
)

// Outcome is what a delivery channel reports. Expected transport failures are
// an Outcome with Delivered=false, not an error.
type Outcome struct {
	Delivered bool
	Reason    string
}

// Delivered is the successful Outcome.
func Delivered() Outcome { return Outcome{Delivered: true} }

// Failed builds a failed Outcome with a reason for the audit record.
func Failed(reason string) Outcome { return Outcome{Reason: reason} }

// Channel delivers a message to an address. Implementations bound their own
// latency; the dispatcher calls Deliver exactly once per notification.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, address, message string) Outcome
}

// LogChannel writes the message to the log and always succeeds. It stands in
// for a real channel in development.
type LogChannel struct {
	Logger log.Logger
}

// Name implements Channel.
func (LogChannel) Name() string { return "log" }

// Deliver implements Channel.
func (c LogChannel) Deliver(ctx context.Context, address, message string) Outcome {
	l := c.Logger
	if l == nil {
		l = log.Nop()
	}
	l.Info(ctx, "notification delivered to log", "to", address, "message", message)
	return Delivered()
}

// Fanout delivers through a primary channel and mirrors the message to
// secondary channels. Only the primary outcome is reported.
type Fanout struct {
	Primary Channel
	Mirrors []Channel
	Logger  log.Logger
}

// Name implements Channel.
func (f Fanout) Name() string { return f.Primary.Name() }

// Deliver implements Channel.
func (f Fanout) Deliver(ctx context.Context, address, message string) Outcome {
	out := f.Primary.Deliver(ctx, address, message)
	for _, m := range f.Mirrors {
		if mo := m.Deliver(ctx, address, message); !mo.Delivered && f.Logger != nil {
			f.Logger.Warn(ctx, "mirror delivery failed", "channel", m.Name(), "reason", mo.Reason)
		}
	}
	return out
}
