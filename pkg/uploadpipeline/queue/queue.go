// Package queue provides the processing job queue: a schema, a retry policy
// and an in-memory implementation. A durable Kafka implementation lives in
// the kafka subpackage.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue after the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Job is the processing queue schema. Delivery is at-least-once; the
// consumer is idempotent with respect to already-terminal metadata states.
type Job struct {
	FileID   uuid.UUID `json:"file_id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

// Handler processes one job. A nil return or a Permanent-wrapped error
// removes the job; any other error triggers a retry per the policy.
type Handler func(ctx context.Context, job Job) error

// ExhaustedFunc is invoked when a job has used up its retry budget without
// succeeding, so the caller can record a terminal outcome.
type ExhaustedFunc func(ctx context.Context, job Job)

// Queue accepts jobs for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// RetryPolicy bounds job retries. Backoff is exponential starting at
// InitialBackoff: 5s, 10s, 20s, ...
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy matches the pipeline contract: 3 attempts, exponential
// backoff starting at 5 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 5 * time.Second}
}

// Backoff returns the delay before the given retry (attempt is 1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable: the consumer removes the job
// without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether an error was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Memory is a channel-backed queue for single-process deployments and tests.
type Memory struct {
	jobs      chan Job
	policy    RetryPolicy
	exhausted ExhaustedFunc

	// mu serializes Close against in-flight Enqueue calls so a send never
	// races the channel close.
	mu     sync.RWMutex
	closed bool
}

// NewMemory creates an in-memory queue with the given buffer size. A zero
// policy falls back to the default retry policy.
func NewMemory(buffer int, policy RetryPolicy) *Memory {
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	return &Memory{
		jobs:   make(chan Job, buffer),
		policy: policy,
	}
}

// OnExhausted sets the callback invoked after the retry budget runs out.
// Must be set before Run.
func (q *Memory) OnExhausted(fn ExhaustedFunc) {
	q.exhausted = fn
}

// Enqueue adds a job. It blocks when the buffer is full and returns
// ErrClosed after Close.
func (q *Memory) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs. Run drains the remaining buffer and returns.
// Close is idempotent.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.jobs)
	return nil
}

// Run consumes jobs one at a time until the queue is closed or the context
// is cancelled. Each job is attempted up to the policy's MaxAttempts with
// exponential backoff; permanent errors and successes remove the job
// immediately.
func (q *Memory) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-q.jobs:
			if !ok {
				return nil
			}
			q.process(ctx, job, handler)
		}
	}
}

func (q *Memory) process(ctx context.Context, job Job, handler Handler) {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, job)
		if err == nil || IsPermanent(err) {
			return
		}
		if attempt >= q.policy.MaxAttempts {
			if q.exhausted != nil {
				q.exhausted(ctx, job)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.policy.Backoff(attempt)):
		}
	}
}
