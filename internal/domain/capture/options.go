package capture

import (
	"time"

	"github.com/okian/ecoquest/pkg/logger"
)

// Option applies a configuration option to the Flow.
type Option func(*Flow)

// WithGate sets the location gate consulted for gated actions. Without one,
// gated actions are always rejected.
func WithGate(g Gate) Option {
	return func(f *Flow) {
		f.gate = g
	}
}

// WithCamera sets the default image source.
func WithCamera(c Camera) Option {
	return func(f *Flow) {
		f.camera = c
	}
}

// WithImpact sets the impact recorder credited on each award.
func WithImpact(r ImpactRecorder) Option {
	return func(f *Flow) {
		f.impact = r
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLogger sets a custom logger for the flow.
func WithLogger(l logger.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

type attempt struct {
	camera Camera
}

// AttemptOption customises a single Capture call.
type AttemptOption func(*attempt)

// UsingCamera overrides the image source for one attempt.
func UsingCamera(c Camera) AttemptOption {
	return func(a *attempt) {
		if c != nil {
			a.camera = c
		}
	}
}
