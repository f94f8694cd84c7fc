// Package sms delivers notifications as text messages through the Twilio
// Messages REST API.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/linnemanlabs/carequeue/internal/notify"
)

const (
	// DefaultBaseURL is the Twilio REST API root.
	DefaultBaseURL = "https://api.twilio.com"

	httpTimeout = 10 * time.Second
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{4,14}$`)

// Config holds Twilio credentials and sending limits.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	// PerSecond bounds outbound messages; zero means unlimited.
	PerSecond float64
}

// Channel sends SMS through Twilio.
type Channel struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

var _ notify.Channel = (*Channel)(nil)

// New creates an SMS channel.
func New(cfg Config) *Channel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	return &Channel{
		cfg:     cfg,
		client:  &http.Client{Timeout: httpTimeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "sms" }

// exception is the error body Twilio returns on 4xx/5xx.
type exception struct {
	Status   int    `json:"status"`
	Message  string `json:"message"`
	Code     int    `json:"code"`
	MoreInfo string `json:"more_info"`
}

// Deliver implements notify.Channel.
func (c *Channel) Deliver(ctx context.Context, address, message string) notify.Outcome {
	to := NormalizeNumber(address)
	if !e164.MatchString(to) {
		return notify.Failed(fmt.Sprintf("sms: %q is not an E.164 phone number", address))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return notify.Failed(fmt.Sprintf("sms: rate limit: %v", err))
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.cfg.From)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return notify.Failed(fmt.Sprintf("sms: create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.client.Do(req) //nolint:gosec // G704: endpoint is built from trusted config
	if err != nil {
		return notify.Failed(fmt.Sprintf("sms: send: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return notify.Delivered()
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var exc exception
	if err := json.Unmarshal(data, &exc); err == nil && exc.Code != 0 {
		return notify.Failed(fmt.Sprintf("sms: twilio %d: %s", exc.Code, exc.Message))
	}
	return notify.Failed(fmt.Sprintf("sms: twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
}

// NormalizeNumber strips formatting from a phone number. Ten-digit numbers
// and eleven-digit numbers starting with 1 are treated as North American.
func NormalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	plus := strings.HasPrefix(s, "+")
	digits := make([]byte, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, byte(r))
		}
	}
	switch {
	case plus:
		return "+" + string(digits)
	case len(digits) == 10:
		return "+1" + string(digits)
	case len(digits) == 11 && digits[0] == '1':
		return "+" + string(digits)
	default:
		return string(digits)
	}
}
