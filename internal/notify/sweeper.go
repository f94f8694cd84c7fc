package notify

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// DefaultSweepBatch bounds how many failed notifications one sweep retries.
const DefaultSweepBatch = 50

// Sweeper periodically retries failed notifications that have no successor
// and have not reached the attempt limit. Each sweep resumes after the last
// notification the previous one looked at and wraps around at the end, so
// notifications that keep failing to retry cannot starve newer ones.
type Sweeper struct {
	mu     sync.Mutex
	cursor string


	dispatcher  *Dispatcher
	store       Store
	interval    time.Duration
	maxAttempts int
	batch       int
	logger      log.Logger
}

// NewSweeper creates a Sweeper. A non-positive interval disables Run.
func NewSweeper(d *Dispatcher, store Store, interval time.Duration, maxAttempts int, logger log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sweeper{
		dispatcher:  d,
		store:       store,
		interval:    interval,
		maxAttempts: maxAttempts,
		batch:       DefaultSweepBatch,
		logger:      logger,
	}
}

// WithBatch overrides DefaultSweepBatch. Non-positive values are ignored.
func (s *Sweeper) WithBatch(n int) *Sweeper {
	if n > 0 {
		s.batch = n
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.maxAttempts <= 1 {
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(ctx, err, "notification sweep failed")
			}
		}
	}
}

// SweepOnce retries one batch of eligible notifications and reports how many
// retries were recorded.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.store.ListRetryable(ctx, s.maxAttempts, s.cursor, s.batch)
	if err != nil {
		return 0, err
	}
	if len(due) < s.batch {
		s.cursor = ""
	} else {
		s.cursor = due[len(due)-1].ID
	}
	retried := 0
	for _, n := range due {
		if ctx.Err() != nil {
			return retried, ctx.Err()
		}
		if _, err := s.dispatcher.Retry(ctx, n.ID); err != nil {
			// Another retry won the race or the patient lost their contact.
			s.logger.Warn(ctx, "notification retry skipped", "notification_id", n.ID, "err", err.Error())
			continue
		}
		retried++
	}
	if retried > 0 {
		s.logger.Info(ctx, "notification sweep complete", "retried", retried, "due", len(due))
	}
	return retried, nil
}
