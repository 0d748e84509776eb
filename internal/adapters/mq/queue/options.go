package queue

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds how many CDM jobs may wait at once.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithRejectHook is called for every job the queue turns away, with the
// reason recorded in the error metrics.
func WithRejectHook(fn func(j Job, reason string)) Option {
	return func(q *InMemoryQueue) {
		q.onReject = fn
	}
}
