package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each event to one topic, keyed by event name so that
// events of the same kind stay ordered within a partition.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaSink(brokers []string, topic string, timeout time.Duration) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, timeout)
}

func newKafkaSink(w messageWriter, timeout time.Duration) *KafkaSink {
	return &KafkaSink{writer: w, timeout: timeout}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, evs ...Event) error {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		payload, err := ev.Encode()
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", ev.Name, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Name),
			Value: payload,
			Time:  ev.OccurredAt,
		})
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write kafka messages: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
