package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/carequeue/internal/cfg"
	"github.com/linnemanlabs/carequeue/internal/events"
	"github.com/linnemanlabs/carequeue/internal/events/kafka"
	"github.com/linnemanlabs/carequeue/internal/events/rabbitmq"
	"github.com/linnemanlabs/carequeue/internal/notify"
	"github.com/linnemanlabs/carequeue/internal/notify/slack"
	"github.com/linnemanlabs/carequeue/internal/notify/sms"
	"github.com/linnemanlabs/carequeue/internal/scorer"
	"github.com/linnemanlabs/carequeue/internal/scorer/claude"
	"github.com/linnemanlabs/carequeue/internal/scorer/openai"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

// buildScorer returns the configured secondary scorer, or nil for none.
func buildScorer(c *vc.Config) triage.Scorer {
	var s triage.Scorer
	switch c.Scorer {
	case vc.ScorerClaude:
		s = claude.New(c.ScorerAPIKey, c.ScorerModel, c.ScorerBaseURL)
	case vc.ScorerOpenAI:
		s = openai.New(c.ScorerAPIKey, c.ScorerModel, c.ScorerBaseURL)
	default:
		return nil
	}
	if ttl := c.ScorerCacheTTL(); ttl > 0 {
		s = scorer.NewCached(s, ttl)
	}
	return s
}

// buildChannel picks SMS when Twilio is configured and the log channel
// otherwise. A Slack webhook mirrors every message to staff.
func buildChannel(c *vc.Config, logger log.Logger) notify.Channel {
	var primary notify.Channel = notify.LogChannel{Logger: logger}
	if c.TwilioAccountSID != "" {
		primary = sms.New(sms.Config{
			AccountSID: c.TwilioAccountSID,
			AuthToken:  c.TwilioAuthToken,
			From:       c.TwilioFrom,
			BaseURL:    c.TwilioBaseURL,
			PerSecond:  c.SMSPerSecond,
		})
	}
	if c.SlackWebhookURL == "" {
		return primary
	}
	return notify.Fanout{
		Primary: primary,
		Mirrors: []notify.Channel{slack.New(c.SlackWebhookURL)},
		Logger:  logger,
	}
}

// buildPublisher connects every configured event sink. The returned close
// function releases them; publisher is nil when no sink is configured.
func buildPublisher(ctx context.Context, c *vc.Config, logger log.Logger) (events.Publisher, func(context.Context) error, error) {
	var (
		sinks   events.Multi
		closers []func() error
	)
	closeAll := func(context.Context) error {
		var errs []error
		for _, fn := range closers {
			errs = append(errs, fn())
		}
		return errors.Join(errs...)
	}

	if brokers := c.KafkaBrokerList(); len(brokers) > 0 {
		p, err := kafka.New(kafka.Config{Brokers: brokers, Topic: c.KafkaTopic, ClientID: appName})
		if err != nil {
			return nil, closeAll, fmt.Errorf("kafka publisher: %w", err)
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
		logger.Info(ctx, "event sink enabled", "type", "kafka", "topic", c.KafkaTopic)
	}

	if c.AMQPURL != "" {
		p, err := rabbitmq.Dial(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			_ = closeAll(ctx)
			return nil, func(context.Context) error { return nil }, fmt.Errorf("amqp publisher: %w", err)
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
		logger.Info(ctx, "event sink enabled", "type", "amqp", "exchange", c.AMQPExchange)
	}

	switch len(sinks) {
	case 0:
		return nil, closeAll, nil
	case 1:
		return sinks[0], closeAll, nil
	default:
		return sinks, closeAll, nil
	}
}
