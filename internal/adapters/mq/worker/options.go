package worker

import (
	"time"

	"github.com/okian/ecoquest/pkg/logger"
)

// Option applies a configuration option to the SyncWorker.
type Option func(*SyncWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *SyncWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *SyncWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(w *SyncWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}
