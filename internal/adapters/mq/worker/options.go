package worker

import (
	"time"

	"github.com/okian/conjunct/pkg/logger"
)

// Option configures an InMemoryWorker. Options given to NewPool apply to
// every worker in it.
type Option func(*InMemoryWorker)

// WithName labels the worker in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the parent logger; the worker name is appended to it.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithJobTimeout bounds a single CDM ingestion. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.jobTimeout = d
		}
	}
}
