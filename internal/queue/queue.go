// Package queue provides at-least-once delivery of purchase jobs.
//
// The Queue interface models a pluggable provider; the shipped
// implementation is backed by the Redis coordination store. Delivery is FIFO
// per priority class with three classes, exponential retry backoff, a 30s
// processing lease, and stalled-job recovery. Consumers must be idempotent:
// a job can be delivered more than once, and the database UNIQUE constraint
// on orders is the true dedup.
package queue

import (
	"context"
	"fmt"
	"time"
)

// Priority classes, dequeued high first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Payload is the purchase job body.
type Payload struct {
	UserID     string    `json:"user_id"`
	SaleID     string    `json:"sale_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Job is a unit of work as seen by handlers.
type Job struct {
	ID          string    `json:"id"`
	Payload     Payload   `json:"payload"`
	Priority    Priority  `json:"priority"`
	Attempts    int       `json:"attempts"` // delivery attempts so far, including the current one
	MaxAttempts int       `json:"max_attempts"`
	Retried     bool      `json:"retried"` // true when redelivered after a stall or retry
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Options tunes a single enqueue.
type Options struct {
	JobID       string   // stable id supplied by the producer; generated when empty
	Priority    Priority // defaults to PriorityNormal
	MaxAttempts int      // defaults to the queue's configured attempts
}

// Stats is the queue depth snapshot served by GET /queue/stats.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

// Handler processes one job. A nil return completes the job. A
// *PermanentError fails it without retry; any other error is treated as
// transient and retried with backoff until MaxAttempts.
type Handler func(ctx context.Context, job *Job) error

// Events are queue-emitted notifications. The worker pool translates these
// into job-state updates in the coordination store.
type Events struct {
	OnCompleted func(job *Job)
	OnFailed    func(job *Job, reason string)
	OnStalled   func(job *Job)
}

// Queue is the pluggable provider contract.
type Queue interface {
	AddJob(ctx context.Context, payload Payload, opts Options) (string, error)
	Process(ctx context.Context, concurrency int, h Handler) error
	GetJob(ctx context.Context, id string) (*Job, error)
	GetJobStatus(ctx context.Context, id string) (string, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// PermanentError marks a job failure as terminal: the queue records the
// reason and does not retry.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("permanent failure: %s", e.Reason)
	}
	return fmt.Sprintf("permanent failure (%s): %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a terminal failure with the given reason code.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// Backoff computes the exponential retry delay for the given completed
// attempt count: base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}
