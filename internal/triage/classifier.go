package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// DefaultScorerTimeout bounds a single scorer consultation.
const DefaultScorerTimeout = 2 * time.Second

// Scorer is an optional secondary opinion on symptom text. It returns ok=false
// when it has no opinion. Errors are treated the same as no opinion.
type Scorer interface {
	Score(ctx context.Context, text string) (p Priority, ok bool, err error)
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(ctx context.Context, text string) (Priority, bool, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, text string) (Priority, bool, error) {
	return f(ctx, text)
}

// Source records which stage produced a classification.
type Source string

const (
	SourceTier   Source = "tier"
	SourceScorer Source = "scorer"
)

// Decision is the outcome of Classifier.Classify.
type Decision struct {
	Priority Priority
	Source   Source
}

// ClassifierHooks are optional callbacks for instrumentation. Nil fields are skipped.
type ClassifierHooks struct {
	OnClassify func(p Priority, src Source)
	OnScorer   func(outcome string, duration float64)
}

// Classifier runs the tiered vocabulary and, when the tiers find nothing,
// asks the optional Scorer whether the text deserves a higher class.
type Classifier struct {
	vocab         Vocabulary
	scorer        Scorer
	scorerTimeout time.Duration
	logger        log.Logger
	hooks         ClassifierHooks
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithScorer installs an upgrade-only secondary scorer.
func WithScorer(s Scorer) Option {
	return func(c *Classifier) { c.scorer = s }
}

// WithScorerTimeout overrides DefaultScorerTimeout. Non-positive values are ignored.
func WithScorerTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.scorerTimeout = d
		}
	}
}

// WithHooks installs instrumentation callbacks.
func WithHooks(h ClassifierHooks) Option {
	return func(c *Classifier) { c.hooks = h }
}

// NewClassifier builds a Classifier over a normalized copy of vocab.
func NewClassifier(vocab Vocabulary, logger log.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = log.Nop()
	}
	c := &Classifier{
		vocab:         vocab.normalized(),
		scorerTimeout: DefaultScorerTimeout,
		logger:        logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Vocabulary returns the normalized vocabulary in use.
func (c *Classifier) Vocabulary() Vocabulary {
	return c.vocab
}

// Classify never fails. A tier match is final; the scorer is only consulted
// for Routine text and its answer is only taken if it ranks higher.
func (c *Classifier) Classify(ctx context.Context, text string) Decision {
	p := c.vocab.Classify(text)
	d := Decision{Priority: p, Source: SourceTier}

	if p == PriorityRoutine && c.scorer != nil {
		if sp, ok := c.consultScorer(ctx, text); ok && sp.Outranks(p) {
			d = Decision{Priority: sp, Source: SourceScorer}
		}
	}

	if c.hooks.OnClassify != nil {
		c.hooks.OnClassify(d.Priority, d.Source)
	}
	return d
}

func (c *Classifier) consultScorer(ctx context.Context, text string) (Priority, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.scorerTimeout)
	defer cancel()

	start := time.Now()
	p, ok, err := c.scorer.Score(ctx, text)
	dur := time.Since(start).Seconds()

	outcome := "opinion"
	switch {
	case err != nil:
		outcome = "error"
		c.logger.Warn(ctx, "scorer failed, keeping tier result", "error", err, "duration", dur)
	case !ok:
		outcome = "no_opinion"
	}
	if c.hooks.OnScorer != nil {
		c.hooks.OnScorer(outcome, dur)
	}
	if err != nil || !ok {
		return PriorityUnknown, false
	}
	return p, true
}
