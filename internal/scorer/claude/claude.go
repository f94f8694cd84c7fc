// Package claude scores symptom text with Anthropic's Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/carequeue/internal/scorer"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5"

// Scorer asks Claude for a single priority label.
type Scorer struct {
	client anthropic.Client
	model  string
}

var _ triage.Scorer = (*Scorer)(nil)

// New creates a Claude scorer. baseURL may be empty for the public API.
// Retries are disabled; the classifier bounds each call with its own timeout.
func New(apiKey, model, baseURL string) *Scorer {
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Scorer{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Score implements triage.Scorer.
func (s *Scorer) Score(ctx context.Context, text string) (triage.Priority, bool, error) {
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: scorer.MaxReplyTokens,
		System:    []anthropic.TextBlockParam{{Text: scorer.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return triage.PriorityUnknown, false, fmt.Errorf("claude: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	if reply.Len() == 0 {
		return triage.PriorityUnknown, false, errors.New("claude: reply has no text")
	}
	p, ok := scorer.ParseReply(reply.String())
	return p, ok, nil
}
