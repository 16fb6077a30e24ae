// Package device holds the stand-ins for the handset: a location service with a
// fixed or movable fix, cameras and the image decoder.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/internal/domain/location"
)

// SimulatedLocation is a location service that reports a configurable fix.
type SimulatedLocation struct {
	mu sync.RWMutex

	granted    bool
	grantOnAsk bool
	warmup     int
	failStart  error
	polls      int
	status     location.ServiceStatus
	fix        geo.Sample
	hasFix     bool

	now func() time.Time
}

// LocationOption configures a SimulatedLocation.
type LocationOption func(*SimulatedLocation)

// WithFix sets the initial fix.
func WithFix(lat, lon, accuracy float64) LocationOption {
	return func(s *SimulatedLocation) {
		s.fix = geo.Sample{Latitude: lat, Longitude: lon, HorizontalAccuracy: accuracy}
		s.hasFix = true
	}
}

// WithPermission sets whether permission is already granted and whether asking grants it.
func WithPermission(granted, grantOnAsk bool) LocationOption {
	return func(s *SimulatedLocation) {
		s.granted = granted
		s.grantOnAsk = grantOnAsk
	}
}

// WithWarmup makes the service report Initializing for n status polls after Start.
func WithWarmup(n int) LocationOption {
	return func(s *SimulatedLocation) {
		if n >= 0 {
			s.warmup = n
		}
	}
}

// WithStartError makes Start fail with err.
func WithStartError(err error) LocationOption {
	return func(s *SimulatedLocation) {
		s.failStart = err
	}
}

// NewSimulatedLocation creates a service with permission granted and no fix.
func NewSimulatedLocation(opts ...LocationOption) *SimulatedLocation {
	s := &SimulatedLocation{
		granted:    true,
		grantOnAsk: true,
		status:     location.ServiceStopped,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PermissionGranted implements location.Provider.
func (s *SimulatedLocation) PermissionGranted(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.granted
}

// RequestPermission implements location.Provider.
func (s *SimulatedLocation) RequestPermission(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grantOnAsk {
		s.granted = true
	}
	return s.granted, nil
}

// Start implements location.Provider.
func (s *SimulatedLocation) Start(context.Context, float64, float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStart != nil {
		s.status = location.ServiceFailed
		return s.failStart
	}
	s.polls = 0
	s.status = location.ServiceInitializing
	if s.warmup == 0 {
		s.status = location.ServiceRunning
	}
	return nil
}

// Stop implements location.Provider.
func (s *SimulatedLocation) Stop() error {
	s.mu.Lock()
	s.status = location.ServiceStopped
	s.mu.Unlock()
	return nil
}

// Status implements location.Provider.
func (s *SimulatedLocation) Status() location.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == location.ServiceInitializing {
		s.polls++
		if s.polls > s.warmup {
			s.status = location.ServiceRunning
		}
	}
	return s.status
}

// LastFix implements location.Provider. The timestamp is the time of the call.
func (s *SimulatedLocation) LastFix() (geo.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != location.ServiceRunning || !s.hasFix {
		return geo.Sample{}, false
	}
	fix := s.fix
	fix.Timestamp = s.now().UTC()
	return fix, true
}

// MoveTo replaces the current fix.
func (s *SimulatedLocation) MoveTo(lat, lon, accuracy float64) {
	s.mu.Lock()
	s.fix = geo.Sample{Latitude: lat, Longitude: lon, HorizontalAccuracy: accuracy}
	s.hasFix = true
	s.mu.Unlock()
}

// Revoke withdraws the permission; the next Start will have to ask again.
func (s *SimulatedLocation) Revoke(grantOnAsk bool) {
	s.mu.Lock()
	s.granted = false
	s.grantOnAsk = grantOnAsk
	s.mu.Unlock()
}
