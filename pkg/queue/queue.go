package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning  = errors.New("queue not running")
	ErrUnknownType = errors.New("no job registered for type")
	ErrJobNotFound = errors.New("job status not found")
)

// Publisher enqueues messages and returns their id.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// StatusReader looks up the state of an enqueued message.
type StatusReader interface {
	Status(ctx context.Context, id string) (*JobStatus, error)
}

// QueueConfig contains the configuration for the queue.
type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // delay between retries
	StatusTTL  time.Duration // how long job status is kept
}

// Message represents a message in the queue.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// JobStatus is the externally visible progress of a message.
type JobStatus struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	Result    string    `json:"result,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParsePayload decodes the message payload into T.
func ParsePayload[T any](msg Message) (*T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("empty payload for %s", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return &result, nil
}

// resultKey is the context key a job uses to report a short result string.
type resultKey struct{}

// SetResult records a short human readable outcome for the running message.
func SetResult(ctx context.Context, result string) {
	if p, ok := ctx.Value(resultKey{}).(*string); ok {
		*p = result
	}
}

func withResultSlot(ctx context.Context) (context.Context, *string) {
	var s string
	return context.WithValue(ctx, resultKey{}, &s), &s
}
