package location

import (
	"time"

	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/pkg/logger"
)

// Option applies a configuration option to the Gate.
type Option func(*Gate)

// WithTarget sets the initial target.
func WithTarget(p geo.Point) Option {
	return func(g *Gate) {
		g.target = p
	}
}

// WithPollInterval sets how often the running gate re-evaluates the fix.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithInitPolicy sets the attempt budget and interval used while waiting for the first fix.
func WithInitPolicy(attempts int, interval time.Duration) Option {
	return func(g *Gate) {
		if attempts > 0 {
			g.initAttempts = attempts
		}
		if interval > 0 {
			g.initInterval = interval
		}
	}
}

// WithAccuracy sets the desired accuracy and update distance passed to the provider.
func WithAccuracy(desiredMeters, updateDistanceMeters float64) Option {
	return func(g *Gate) {
		if desiredMeters > 0 {
			g.desiredAccuracy = desiredMeters
		}
		if updateDistanceMeters > 0 {
			g.updateDistance = updateDistanceMeters
		}
	}
}

// WithLogger sets a custom logger for the gate.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}
