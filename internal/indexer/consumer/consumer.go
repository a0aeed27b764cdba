// Package consumer applies record change events from Kafka to the index.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/metrics"
)

// Writer is the part of the search service the consumer drives.
type Writer interface {
	Upsert(ctx context.Context, rec schema.Record) error
	Delete(ctx context.Context, id int64) error
}

// Committer persists applied changes. The index engine implements it.
type Committer interface {
	Commit(ctx context.Context) error
}

// finalCheckpointTimeout bounds the checkpoint run after consumption stops.
const finalCheckpointTimeout = 10 * time.Second

// IndexConsumer drives the indexing pipeline from Kafka. Offsets are only
// committed after the index commit that contains their events.
type IndexConsumer struct {
	consumer  *kafka.Consumer
	committer Committer
	interval  time.Duration
	logger    *slog.Logger
}

// New checkpoints every interval while running; a non-positive interval
// checkpoints only when Run returns.
func New(kafkaConsumer *kafka.Consumer, committer Committer, interval time.Duration) *IndexConsumer {
	return &IndexConsumer{
		consumer:  kafkaConsumer,
		committer: committer,
		interval:  interval,
		logger:    slog.Default().With("component", "index-consumer"),
	}
}

// Run consumes until ctx is cancelled or an event cannot be applied, then
// runs a final checkpoint. The consume error, if any, is returned.
func (ic *IndexConsumer) Run(ctx context.Context) error {
	ic.logger.Info("index consumer starting", "checkpoint_interval", ic.interval)
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if ic.interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(ic.interval)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					return
				case <-ticker.C:
					if err := ic.Checkpoint(loopCtx); err != nil && loopCtx.Err() == nil {
						ic.logger.Error("checkpoint failed", "error", err)
					}
				}
			}
		}()
	}

	consumeErr := ic.consumer.Start(loopCtx)
	cancel()
	wg.Wait()

	finalCtx, cancelFinal := context.WithTimeout(context.WithoutCancel(ctx), finalCheckpointTimeout)
	defer cancelFinal()
	if err := ic.Checkpoint(finalCtx); err != nil {
		return errors.Join(consumeErr, fmt.Errorf("final checkpoint: %w", err))
	}
	return consumeErr
}

// Checkpoint commits the index, then the offsets of the events applied
// before it.
func (ic *IndexConsumer) Checkpoint(ctx context.Context) error {
	return ic.consumer.Checkpoint(ctx, ic.committer.Commit)
}

// HandleMessage returns a Kafka MessageHandler that applies each record
// event to w. Events that can never succeed (undecodable, unknown action,
// invalid record, delete of an absent id) are logged and acknowledged;
// anything else is returned so the message is not committed.
func HandleMessage(w Writer, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	if m == nil {
		m = metrics.New(nil)
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[kafka.RecordEvent](value)
		if err == nil {
			err = event.Validate()
		}
		if err != nil {
			logger.Error("dropping malformed record event",
				"error", err,
				"key", string(key),
			)
			m.IngestEventsTotal.WithLabelValues("unknown", "dropped").Inc()
			return nil
		}

		action := string(event.Action)
		switch event.Action {
		case kafka.ActionUpsert:
			err = w.Upsert(ctx, schema.Record{ID: event.ID, Fields: event.Fields})
		case kafka.ActionDelete:
			err = w.Delete(ctx, event.ID)
		}

		switch {
		case err == nil:
			m.IngestEventsTotal.WithLabelValues(action, "applied").Inc()
			logger.Debug("record event applied", "action", action, "id", event.ID)
			return nil
		case errors.Is(err, apperrors.ErrDocumentNotFound),
			errors.Is(err, apperrors.ErrInvalidInput),
			errors.Is(err, apperrors.ErrTokenizeFailed):
			m.IngestEventsTotal.WithLabelValues(action, "dropped").Inc()
			logger.Warn("record event rejected", "action", action, "id", event.ID, "error", err)
			return nil
		default:
			m.IngestEventsTotal.WithLabelValues(action, "failed").Inc()
			return fmt.Errorf("applying %s of record %d: %w", action, event.ID, err)
		}
	}
}
