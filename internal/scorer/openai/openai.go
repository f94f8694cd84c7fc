// Package openai scores symptom text with an OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/linnemanlabs/carequeue/internal/scorer"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

// DefaultModel is used when no model is configured.
const DefaultModel = goopenai.GPT4oMini

// Scorer asks a chat model for a single priority label.
type Scorer struct {
	client *goopenai.Client
	model  string
}

var _ triage.Scorer = (*Scorer)(nil)

// New creates an OpenAI scorer. baseURL may point at any compatible endpoint
// and must include the version path, e.g. https://api.openai.com/v1.
func New(apiKey, model, baseURL string) *Scorer {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Scorer{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Score implements triage.Scorer.
func (s *Scorer) Score(ctx context.Context, text string) (triage.Priority, bool, error) {
	resp, err := s.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   scorer.MaxReplyTokens,
		Temperature: 0,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: scorer.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return triage.PriorityUnknown, false, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return triage.PriorityUnknown, false, errors.New("openai: reply has no choices")
	}
	p, ok := scorer.ParseReply(resp.Choices[0].Message.Content)
	return p, ok, nil
}
