package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafka.Message
	calls   int
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishKeysEventsByRecordID(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "flight-records")

	require.NoError(t, p.Publish(context.Background(),
		RecordEvent{Action: ActionUpsert, ID: 7, Fields: map[string]string{"name": "Vistara"}},
		RecordEvent{Action: ActionDelete, ID: 3},
	))
	require.Len(t, w.written, 2)
	assert.Equal(t, 1, w.calls, "one write per publish")

	assert.Equal(t, "7", string(w.written[0].Key))
	assert.Equal(t, "3", string(w.written[1].Key))
	assert.Equal(t, []kafka.Header{{Key: "action", Value: []byte("delete")}}, w.written[1].Headers)

	var ev RecordEvent
	require.NoError(t, json.Unmarshal(w.written[0].Value, &ev))
	assert.Equal(t, RecordEvent{Action: ActionUpsert, ID: 7, Fields: map[string]string{"name": "Vistara"}}, ev)
}

func TestPublishRejectsBatchWithInvalidEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "flight-records")

	err := p.Publish(context.Background(),
		RecordEvent{Action: ActionUpsert, ID: 1},
		RecordEvent{Action: "merge", ID: 2},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
	assert.Zero(t, w.calls, "nothing is written when any event is invalid")
}

func TestPublishWrapsWriteErrors(t *testing.T) {
	cause := errors.New("leader not available")
	w := &fakeWriter{err: cause}
	p := newProducer(w, "flight-records")

	err := p.Publish(context.Background(), RecordEvent{Action: ActionDelete, ID: 9})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "flight-records")
}

func TestPublishNothingIsNoop(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "flight-records")
	require.NoError(t, p.Publish(context.Background()))
	assert.Zero(t, w.calls)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
