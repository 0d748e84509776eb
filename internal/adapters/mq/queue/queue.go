// Package queue defines the contract for enqueuing and consuming CDM jobs.
//
// The only implementation is an in-memory bounded queue; jobs that do not
// fit are rejected rather than blocking the producer.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/pkg/metrics"
)

const defaultCapacity = 1000

// Reasons a job is turned away.
const (
	RejectClosed    = "closed"
	RejectFull      = "queue_full"
	RejectCancelled = "context_cancelled"
)

// Job is the payload flowing through the queue.
type Job = model.CdmJob

// Queue accepts CDM jobs without blocking and hands them to consumers.
type Queue interface {
	// Enqueue reports whether j was accepted.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue yields jobs until the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int

	// Close stops intake. Jobs already buffered are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue is a Queue backed by a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	onReject func(Job, string)

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue holding at most the configured capacity.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.observe()
	return q
}

// Enqueue adds a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool { //nolint:gocritic // hugeParam: Job must be passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject(j, RejectClosed)
		return false
	}
	if err := ctx.Err(); err != nil {
		q.reject(j, RejectCancelled)
		return false
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		q.reject(j, RejectFull)
		return false
	}
}

func (q *InMemoryQueue) reject(j Job, reason string) { //nolint:gocritic // hugeParam
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
	if q.onReject != nil {
		q.onReject(j, reason)
	}
}

// observe publishes the current depth and fill ratio.
func (q *InMemoryQueue) observe() int {
	n := len(q.jobs)
	metrics.UpdateQueueSize(n)
	metrics.UpdateQueueUtilization(float64(n) / float64(q.capacity))
	return n
}

// Dequeue starts a forwarder for one consumer. Several workers may each
// call it on the same queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of buffered jobs.
func (q *InMemoryQueue) Len(context.Context) int {
	return q.observe()
}

// Close stops intake. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.jobs)
		q.closed = true
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
