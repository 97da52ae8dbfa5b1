package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backfillPayload struct {
	Limit int    `json:"limit"`
	From  string `json:"from"`
}

func TestParsePayload(t *testing.T) {
	raw, _ := json.Marshal(backfillPayload{Limit: 500, From: "2024-01-01T00:00:00Z"})
	got, err := ParsePayload[backfillPayload](Message{Type: "backfill", Payload: raw})
	require.NoError(t, err)
	assert.Equal(t, 500, got.Limit)
	assert.Equal(t, "2024-01-01T00:00:00Z", got.From)
}

func TestParsePayload_Errors(t *testing.T) {
	_, err := ParsePayload[backfillPayload](Message{Type: "backfill"})
	assert.Error(t, err)

	_, err = ParsePayload[backfillPayload](Message{Type: "backfill", Payload: json.RawMessage(`{"limit":"x"}`)})
	assert.ErrorContains(t, err, "unmarshal backfill payload")
}

func TestSetResult(t *testing.T) {
	ctx, slot := withResultSlot(context.Background())
	SetResult(ctx, "stored 42 records")
	assert.Equal(t, "stored 42 records", *slot)

	// no slot: ignored
	SetResult(context.Background(), "x")
}

func TestKeys(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, ModeProducerConsumer, WithKeyPrefix("pf:q"))
	assert.Equal(t, "pf:q:messages", q.queueKey())
	assert.Equal(t, "pf:q:retry", q.retryKey())
	assert.Equal(t, "pf:q:dlq", q.deadLetterKey())
	assert.Equal(t, "pf:q:status:abc", q.statusKey("abc"))
	assert.Equal(t, 1, q.config.Workers)
}

func TestEnqueue_NotRunning(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, ModeProducerConsumer)
	_, err := q.Enqueue(context.Background(), "backfill", backfillPayload{})
	assert.ErrorIs(t, err, ErrNotRunning)
}
