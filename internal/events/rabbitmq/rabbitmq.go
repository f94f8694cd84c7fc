// Package rabbitmq publishes lifecycle events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/streadway/amqp"

	"github.com/linnemanlabs/carequeue/internal/events"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends each event to the exchange with routing key
// "carequeue.<event type>", e.g. "carequeue.case.created".
type Publisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

// Dial connects, declares a durable topic exchange and returns a Publisher.
func Dial(url, exchange string) (*Publisher, error) {
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("amqp: exchange is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}
	p := NewWithChannel(ch, exchange)
	p.conn = conn
	return p, nil
}

// NewWithChannel wraps an already open channel.
func NewWithChannel(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

// RoutingKey returns the routing key used for an event type.
func RoutingKey(t events.Type) string {
	return "carequeue." + string(t)
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("amqp: marshal event: %w", err)
	}
	err = p.ch.Publish(p.exchange, RoutingKey(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Headers: amqp.Table{
			"event_type":   string(ev.Type),
			"aggregate_id": ev.Key,
		},
	})
	if err != nil {
		return fmt.Errorf("amqp: publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close closes the channel and the connection if this publisher opened it.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
