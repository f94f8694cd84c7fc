// Package scorer holds what the model-backed triage scorers share: the
// instruction prompt, reply parsing and an opinion cache.
package scorer

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/linnemanlabs/carequeue/internal/triage"
)

// SystemPrompt instructs a model to answer with a single label.
const SystemPrompt = `You assist a clinic front desk in ordering a waiting queue.
Read the patient's description of their symptoms and answer with exactly one word:
Emergency, Urgent, or Routine. Answer None if the text is not a symptom description.
Do not explain.`

// MaxReplyTokens bounds the model reply; one label fits easily.
const MaxReplyTokens = 8

// ParseReply turns a model reply into an opinion. Anything other than a known
// priority label, including "None" or "Normal", is no opinion.
func ParseReply(reply string) (triage.Priority, bool) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return triage.PriorityUnknown, false
	}
	return triage.ParsePriority(fields[0])
}

type opinion struct {
	p  triage.Priority
	ok bool
}

// Cached memoizes opinions of another scorer per normalized text. Errors are
// never cached.
type Cached struct {
	next  triage.Scorer
	cache *gocache.Cache
}

var _ triage.Scorer = (*Cached)(nil)

// NewCached wraps next with a TTL cache.
func NewCached(next triage.Scorer, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Score implements triage.Scorer.
func (c *Cached) Score(ctx context.Context, text string) (triage.Priority, bool, error) {
	key := cacheKey(text)
	if v, found := c.cache.Get(key); found {
		o := v.(opinion)
		return o.p, o.ok, nil
	}
	p, ok, err := c.next.Score(ctx, text)
	if err != nil {
		return triage.PriorityUnknown, false, err
	}
	c.cache.SetDefault(key, opinion{p: p, ok: ok})
	return p, ok, nil
}

func cacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
