package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// RabbitSink publishes to a topic exchange using the event name as routing key,
// so consumers can bind on patterns such as "order.*".
type RabbitSink struct {
	conn     *amqp091.Connection
	ch       amqpChannel
	exchange string
	timeout  time.Duration
}

// DialRabbit connects and declares the exchange.
func DialRabbit(url, exchange string, timeout time.Duration) (*RabbitSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("events: rabbitmq sink ready")
	sink := newRabbitSink(ch, exchange, timeout)
	sink.conn = conn
	return sink, nil
}

func newRabbitSink(ch amqpChannel, exchange string, timeout time.Duration) *RabbitSink {
	return &RabbitSink{ch: ch, exchange: exchange, timeout: timeout}
}

func (s *RabbitSink) Name() string { return "rabbitmq" }

// RoutingKey turns "order:paid" into "order.paid".
func RoutingKey(name string) string {
	return strings.ReplaceAll(name, ":", ".")
}

func (s *RabbitSink) Send(ctx context.Context, evs ...Event) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for _, ev := range evs {
		body, err := ev.Encode()
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", ev.Name, err)
		}
		err = s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(ev.Name), false, false, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    ev.OccurredAt,
			Type:         ev.Name,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", ev.Name, err)
		}
	}
	return nil
}

func (s *RabbitSink) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
