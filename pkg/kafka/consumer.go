// Package kafka carries record change events between the publishing side of
// the ingest command and the index consumer, over segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is a callback invoked for each Kafka message. A returned
// error means the message was not applied and must be delivered again.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler. Offsets are not committed as messages are handled; the
// caller persists the applied messages and then calls Checkpoint.
type Consumer struct {
	reader  MessageReader
	brokers []string
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig

	mu      sync.Mutex
	pending map[int]kafka.Message
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	c := NewConsumerFromReader(r, handler, resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	})
	c.brokers = cfg.Brokers
	c.logger = c.logger.With("topic", topic)
	return c
}

// NewConsumerFromReader builds a Consumer over any MessageReader. retry
// bounds how often a failing message is handled again before Start gives up.
func NewConsumerFromReader(r MessageReader, handler MessageHandler, retry resilience.RetryConfig) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer"),
		handler: handler,
		retry:   retry,
		pending: make(map[int]kafka.Message),
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled. A message whose handler keeps failing stops the loop with an
// error: later messages of its partition are never handled past it, so its
// offset is never committed and it is redelivered after a restart.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		err = resilience.Retry(ctx, "handle kafka message", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("giving up on message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return fmt.Errorf("handling message at partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}
		c.mu.Lock()
		c.pending[msg.Partition] = msg
		c.mu.Unlock()
	}
}

// Checkpoint makes the handled messages durable: it calls persist and, only
// if that succeeds, commits the offsets of every message handled before the
// call. Messages handled while persist runs stay pending for the next
// checkpoint.
func (c *Consumer) Checkpoint(ctx context.Context, persist func(context.Context) error) error {
	c.mu.Lock()
	msgs := make([]kafka.Message, 0, len(c.pending))
	for _, m := range c.pending {
		msgs = append(msgs, m)
	}
	c.mu.Unlock()

	if err := persist(ctx); err != nil {
		return fmt.Errorf("persisting before offset commit: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("committing offsets: %w", err)
	}

	c.mu.Lock()
	for _, m := range msgs {
		if cur, ok := c.pending[m.Partition]; ok && cur.Offset == m.Offset {
			delete(c.pending, m.Partition)
		}
	}
	c.mu.Unlock()
	c.logger.Debug("offsets committed", "partitions", len(msgs))
	return nil
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Ping succeeds if any configured broker accepts a connection.
func (c *Consumer) Ping(ctx context.Context) error {
	var lastErr error
	for _, b := range c.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no brokers configured")
	}
	return fmt.Errorf("reaching kafka: %w", lastErr)
}

// Stats reports the reader's lag and error counters since the last call.
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
