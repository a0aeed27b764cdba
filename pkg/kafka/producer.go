package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	"github.com/segmentio/kafka-go"
)

// actionHeader carries the event action so consumers can route or filter
// without decoding the value.
const actionHeader = "action"

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes record change events to one topic.
type Producer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewProducer writes synchronously and waits for every in-sync replica, so a
// nil error from Publish means the events are durable.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish validates every event before writing any, then writes them in one
// call. Events are keyed by record id, so changes to one record stay on one
// partition in publish order.
func (p *Producer) Publish(ctx context.Context, events ...RecordEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("event %d (record %d): %w", i, ev.ID, err)
		}
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event for record %d: %w", ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     ev.Key(),
			Value:   value,
			Headers: []kafka.Header{{Key: actionHeader, Value: []byte(ev.Action)}},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to publish record events", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing %d record event(s) to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("record events published", "count", len(msgs))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
