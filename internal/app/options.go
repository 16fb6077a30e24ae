package service

import (
	"time"

	"github.com/okian/ecoquest/internal/adapters/profile"
	"github.com/okian/ecoquest/internal/domain/capture"
	"github.com/okian/ecoquest/internal/domain/catalog"
	"github.com/okian/ecoquest/internal/domain/ledger"
	"github.com/okian/ecoquest/internal/domain/location"
	"github.com/okian/ecoquest/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithUserID sets the player served by the session.
func WithUserID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.userID = id
		}
	}
}

// WithCatalog sets the action catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithLocationProvider sets the device location service.
func WithLocationProvider(p location.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithGateOptions passes options through to the location gate.
func WithGateOptions(opts ...location.Option) Option {
	return func(s *Service) {
		s.gateOpts = append(s.gateOpts, opts...)
	}
}

// WithCamera sets the default camera.
func WithCamera(c capture.Camera) Option {
	return func(s *Service) {
		if c != nil {
			s.camera = c
		}
	}
}

// WithDecoder sets the image decoder.
func WithDecoder(d capture.Decoder) Option {
	return func(s *Service) {
		if d != nil {
			s.decoder = d
		}
	}
}

// WithPhotoStore sets where pictures are kept.
func WithPhotoStore(p capture.PhotoStore) Option {
	return func(s *Service) {
		if p != nil {
			s.photos = p
		}
	}
}

// WithLocalStore sets the on-device store for completion flags and photo records.
func WithLocalStore(l LocalStore) Option {
	return func(s *Service) {
		if l != nil {
			s.local = l
		}
	}
}

// WithRemoteStore sets the remote profile store.
func WithRemoteStore(r profile.Store) Option {
	return func(s *Service) {
		if r != nil {
			s.remote = r
		}
	}
}

// WithDataDir sets the directory for uploads and default stores.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithQueueSize sets the maximum number of pending remote updates.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of remote sync workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithSyncTimeout bounds each remote call.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// WithScoring sets points per action, points per level and the badge ladder.
// A nil ladder keeps the default one.
func WithScoring(pointsPerAction, pointsPerLevel int, thresholds []ledger.Threshold) Option {
	return func(s *Service) {
		s.pointsPerAction = pointsPerAction
		s.pointsPerLevel = pointsPerLevel
		if len(thresholds) > 0 {
			s.thresholds = thresholds
		}
	}
}

// WithImpact sets the impact credited per award and the history window.
func WithImpact(co2Kg, waterLiters float64, historyDays int) Option {
	return func(s *Service) {
		s.co2PerAction = co2Kg
		s.waterPerAction = waterLiters
		s.historyDays = historyDays
	}
}

// WithClock overrides time.Now for every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
