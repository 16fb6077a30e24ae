// Package location implements the location gate: a state machine over the device
// location service that reports whether the latest fix lies within a target radius.
package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/pkg/logger"
	"github.com/okian/ecoquest/pkg/metrics"
)

// Default gate configuration constants.
const (
	defaultPollInterval    = time.Second
	defaultInitInterval    = time.Second
	defaultInitAttempts    = 20
	defaultDesiredAccuracy = 1.0
	defaultUpdateDistance  = 0.1
)

// State is the gate lifecycle state.
type State int

// Gate states.
const (
	StateIdle State = iota
	StateRequestingPermission
	StateInitializing
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) active() bool {
	return s == StateRequestingPermission || s == StateInitializing || s == StateRunning
}

// ServiceStatus mirrors the status reported by the device location service.
type ServiceStatus int

// Device service statuses.
const (
	ServiceStopped ServiceStatus = iota
	ServiceInitializing
	ServiceRunning
	ServiceFailed
)

func (s ServiceStatus) String() string {
	switch s {
	case ServiceStopped:
		return "stopped"
	case ServiceInitializing:
		return "initializing"
	case ServiceRunning:
		return "running"
	case ServiceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Provider is the device location service.
type Provider interface {
	PermissionGranted(ctx context.Context) bool
	RequestPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context, desiredAccuracyMeters, updateDistanceMeters float64) error
	Stop() error
	Status() ServiceStatus
	LastFix() (geo.Sample, bool)
}

// Reading is a snapshot of the gate for display.
type Reading struct {
	State          string      `json:"state"`
	Target         geo.Point   `json:"target"`
	Valid          bool        `json:"valid"`
	DistanceMeters float64     `json:"distance_m"`
	Sample         *geo.Sample `json:"sample,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Gate validates the device position against a target point.
type Gate struct {
	mu sync.RWMutex

	provider Provider
	target   geo.Point

	state      State
	err        error
	lastDist   float64
	lastValid  bool
	hasReading bool

	providerStarted bool
	cancel          context.CancelFunc
	done            chan struct{}
	ready           chan struct{}
	readyClosed     bool

	// Configuration
	pollInterval    time.Duration
	initInterval    time.Duration
	initAttempts    int
	desiredAccuracy float64
	updateDistance  float64

	logger logger.Logger
}

// NewGate creates a gate over provider. The gate stays Idle until Start.
func NewGate(provider Provider, opts ...Option) *Gate {
	g := &Gate{
		provider:        provider,
		state:           StateIdle,
		pollInterval:    defaultPollInterval,
		initInterval:    defaultInitInterval,
		initAttempts:    defaultInitAttempts,
		desiredAccuracy: defaultDesiredAccuracy,
		updateDistance:  defaultUpdateDistance,
		logger:          logger.Get().Named("location"),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Start launches permission, initialization and polling in the background.
// It is a no-op while the gate is already active and acts as a retry from
// Failed or Stopped.
func (g *Gate) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.active() {
		return nil
	}
	if g.provider == nil {
		return fmt.Errorf("start gate: %w", ErrNoProvider)
	}

	if g.cancel != nil {
		g.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	g.ready = make(chan struct{})
	g.readyClosed = false
	g.err = nil
	g.hasReading = false
	g.lastValid = false
	g.lastDist = 0

	go g.run(runCtx, g.done)
	return nil
}

// WaitReady blocks until the gate is Running (nil) or has failed (its cause).
func (g *Gate) WaitReady(ctx context.Context) error {
	g.mu.RLock()
	ready := g.ready
	g.mu.RUnlock()

	if ready == nil {
		return ErrNotStarted
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return fmt.Errorf("wait for location: %w", ctx.Err())
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	switch g.state {
	case StateRunning:
		return nil
	case StateFailed:
		return g.err
	default:
		return ErrStopped
	}
}

// Stop cancels the polling task and stops the device service. Safe to call repeatedly.
func (g *Gate) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	g.stopProvider()

	g.mu.Lock()
	if g.state.active() {
		g.setStateLocked(StateStopped)
	}
	g.closeReadyLocked()
	g.mu.Unlock()
}

// IsValid reports whether the freshest fix is inside the target radius.
// It is false unless the gate is Running.
func (g *Gate) IsValid() bool {
	if g.State() != StateRunning {
		g.logger.Warn(context.Background(), "location service is not running")
		return false
	}
	return g.evaluate(context.Background())
}

// CurrentSample returns the latest device fix while the gate is Running.
func (g *Gate) CurrentSample() (geo.Sample, bool) {
	if g.State() != StateRunning || g.provider.Status() != ServiceRunning {
		return geo.Sample{}, false
	}
	return g.provider.LastFix()
}

// SetTarget rebinds the target. It takes effect on the next evaluation and does
// not restart the device service.
func (g *Gate) SetTarget(p geo.Point) {
	g.mu.Lock()
	g.target = p
	g.hasReading = false
	g.lastValid = false
	g.lastDist = 0
	g.mu.Unlock()

	g.logger.Info(context.Background(), "location target updated",
		logger.Float64("latitude", p.Latitude),
		logger.Float64("longitude", p.Longitude),
		logger.Float64("radius_m", p.RadiusMeters),
	)
}

// Target returns the current target.
func (g *Gate) Target() geo.Point {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.target
}

// State returns the lifecycle state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Err returns the failure cause when the gate is Failed.
func (g *Gate) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

// DistanceToTarget returns the last computed distance in meters.
func (g *Gate) DistanceToTarget() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastDist
}

// Reading returns a display snapshot without forcing a recomputation.
func (g *Gate) Reading() Reading {
	sample, hasSample := g.CurrentSample()

	g.mu.RLock()
	defer g.mu.RUnlock()
	r := Reading{
		State:          g.state.String(),
		Target:         g.target,
		Valid:          g.state == StateRunning && g.lastValid,
		DistanceMeters: g.lastDist,
	}
	if hasSample {
		r.Sample = &sample
	}
	if g.err != nil {
		r.Error = g.err.Error()
	}
	return r
}

func (g *Gate) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer g.stopProvider()

	if err := g.acquire(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		g.mu.Lock()
		g.err = err
		g.setStateLocked(StateFailed)
		g.closeReadyLocked()
		g.mu.Unlock()
		g.logger.Error(ctx, "location service unavailable", logger.Error(err))
		return
	}

	g.mu.Lock()
	g.setStateLocked(StateRunning)
	g.closeReadyLocked()
	g.mu.Unlock()
	g.logger.Info(ctx, "location service running")

	g.evaluate(ctx)

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if st := g.provider.Status(); st != ServiceRunning {
				g.mu.Lock()
				g.err = fmt.Errorf("%w: service went %s", ErrServiceFailed, st)
				g.hasReading = false
				g.lastValid = false
				g.setStateLocked(StateFailed)
				g.mu.Unlock()
				g.logger.Error(ctx, "location service lost", logger.String("status", st.String()))
				return
			}
			g.evaluate(ctx)
		}
	}
}

// acquire walks RequestingPermission and Initializing.
func (g *Gate) acquire(ctx context.Context) error {
	if !g.provider.PermissionGranted(ctx) {
		g.setState(StateRequestingPermission)
		granted, err := g.provider.RequestPermission(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		if !granted {
			return ErrPermissionDenied
		}
	}

	g.setState(StateInitializing)
	if err := g.provider.Start(ctx, g.desiredAccuracy, g.updateDistance); err != nil {
		return fmt.Errorf("%w: %w", ErrServiceFailed, err)
	}
	g.mu.Lock()
	g.providerStarted = true
	g.mu.Unlock()

	ticker := time.NewTicker(g.initInterval)
	defer ticker.Stop()
	for attempt := 0; ; attempt++ {
		switch g.provider.Status() {
		case ServiceRunning:
			return nil
		case ServiceFailed:
			return ErrServiceFailed
		}
		if attempt >= g.initAttempts {
			return fmt.Errorf("%w after %d polls", ErrServiceTimeout, g.initAttempts)
		}
		g.logger.Debug(ctx, "waiting for location fix", logger.Int("remaining", g.initAttempts-attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// evaluate recomputes validity from the freshest fix. Without a live fix the
// cached reading is dropped and the result is false.
func (g *Gate) evaluate(ctx context.Context) bool {
	var (
		fix geo.Sample
		ok  bool
	)
	if g.provider.Status() == ServiceRunning {
		fix, ok = g.provider.LastFix()
	}

	g.mu.Lock()
	if !ok {
		g.hasReading = false
		g.lastValid = false
		g.mu.Unlock()
		return false
	}
	valid, dist := g.target.Contains(fix.Point())
	g.lastDist = dist
	g.lastValid = valid
	g.hasReading = true
	g.mu.Unlock()

	metrics.RecordLocationFix(dist, valid)
	g.logger.Debug(ctx, "location evaluated",
		logger.Float64("latitude", fix.Latitude),
		logger.Float64("longitude", fix.Longitude),
		logger.Float64("accuracy_m", fix.HorizontalAccuracy),
		logger.Float64("distance_m", dist),
		logger.Bool("valid", valid),
	)
	return valid
}

func (g *Gate) stopProvider() {
	g.mu.Lock()
	started := g.providerStarted
	g.providerStarted = false
	g.mu.Unlock()

	if !started {
		return
	}
	if err := g.provider.Stop(); err != nil {
		g.logger.Error(context.Background(), "failed to stop location service", logger.Error(err))
	}
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.setStateLocked(s)
	g.mu.Unlock()
}

// setStateLocked must be called with g.mu held.
func (g *Gate) setStateLocked(s State) {
	g.state = s
	metrics.UpdateGateState(int(s))
}

// closeReadyLocked must be called with g.mu held.
func (g *Gate) closeReadyLocked() {
	if g.ready != nil && !g.readyClosed {
		close(g.ready)
		g.readyClosed = true
	}
}
