package ledger

import (
	"time"

	"github.com/okian/ecoquest/internal/domain/completion"
	"github.com/okian/ecoquest/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithPointsPerAction sets the flat reward per first completion.
func WithPointsPerAction(points int) Option {
	return func(l *Ledger) {
		l.pointsPerAction = points
	}
}

// WithPointsPerLevel sets the level width.
func WithPointsPerLevel(points int) Option {
	return func(l *Ledger) {
		l.pointsPerLevel = points
	}
}

// WithThresholds replaces the badge thresholds.
func WithThresholds(t []Threshold) Option {
	return func(l *Ledger) {
		if len(t) > 0 {
			l.thresholds = append([]Threshold(nil), t...)
		}
	}
}

// WithTracker sets the completion flag tracker.
func WithTracker(t completion.Tracker) Option {
	return func(l *Ledger) {
		if t != nil {
			l.tracker = t
		}
	}
}

// WithFetcher sets the remote reader used at login.
func WithFetcher(f Fetcher) Option {
	return func(l *Ledger) {
		l.fetcher = f
	}
}

// WithSyncer sets the asynchronous remote writer.
func WithSyncer(s Syncer) Option {
	return func(l *Ledger) {
		l.syncer = s
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a custom logger for the ledger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.logger = lg
		}
	}
}
