// Package slack mirrors patient notifications to a staff Slack channel via an
// incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/carequeue/internal/notify"
)

const (
	maxMessageLen = 3000
	httpTimeout   = 10 * time.Second
)

// Channel posts each notification to a Slack webhook.
type Channel struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

var _ notify.Channel = (*Channel)(nil)

// New creates a Slack channel for the given webhook URL.
func New(webhookURL string) *Channel {
	return &Channel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		now:        time.Now,
	}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "slack" }

// Deliver implements notify.Channel. Webhook errors become a failed Outcome.
func (c *Channel) Deliver(ctx context.Context, address, message string) notify.Outcome {
	if c.webhookURL == "" {
		return notify.Failed("slack: webhook not configured")
	}
	if err := c.post(ctx, buildMessage(address, message, c.now())); err != nil {
		return notify.Failed(err.Error())
	}
	return notify.Delivered()
}

func (c *Channel) post(ctx context.Context, msg map[string]any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(address, message string, at time.Time) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(message),
			fieldsBlock(address),
			{"type": "divider"},
			messageBlock(message),
			contextBlock(at),
		},
	}
}

func headerBlock(message string) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": levelEmoji(message) + " Patient notification",
		},
	}
}

func fieldsBlock(address string) map[string]any {
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*To:* %s", maskAddress(address)),
			},
		},
	}
}

func messageBlock(message string) map[string]any {
	text := truncate(message, maxMessageLen)
	if text == "" {
		text = "_Empty message._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func contextBlock(at time.Time) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("carequeue • %s", at.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

// levelEmoji picks a colour from the triage level named in the message, if any.
func levelEmoji(message string) string {
	switch {
	case strings.Contains(message, "Emergency"):
		return "\U0001f534" // red circle
	case strings.Contains(message, "Urgent"):
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// maskAddress keeps only the last four characters of a contact address.
func maskAddress(address string) string {
	r := []rune(address)
	if len(r) <= 4 {
		return strings.Repeat("•", len(r))
	}
	return strings.Repeat("•", len(r)-4) + string(r[len(r)-4:])
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
