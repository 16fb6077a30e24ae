// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Flat keys are settable from the environment; list-valued keys (catalog,
//   badges) only from the YAML file.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/ecoquest/internal/domain/catalog"
	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/internal/domain/impact"
	"github.com/okian/ecoquest/internal/domain/ledger"
)

// Remote profile backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile, when set, receives a rotated copy of the log.
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`
	LogMaxAgeDays int    `koanf:"log_max_age_days"`
	LogCompress   bool   `koanf:"log_compress"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// UserID is the player this process serves.
	UserID string `koanf:"user_id"`

	// DataDir holds the local database, stored photos and camera output.
	DataDir string `koanf:"data_dir"`

	// DBPath overrides the SQLite location. ":memory:" keeps nothing on disk.
	DBPath string `koanf:"db_path"`

	// RemoteBackend selects the profile store: memory or redis.
	RemoteBackend  string `koanf:"remote_backend"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// SyncQueueSize bounds pending remote updates.
	SyncQueueSize int `koanf:"sync_queue_size"`

	// SyncWorkers sets the number of remote sync workers. One keeps updates ordered.
	SyncWorkers int `koanf:"sync_workers"`

	// SyncTimeoutMS bounds each remote call.
	SyncTimeoutMS int `koanf:"sync_timeout_ms"`

	// ProfileSyncIntervalS re-pushes the whole profile periodically. It is off
	// (0) by default so failed pushes are not retried unless asked for.
	ProfileSyncIntervalS int `koanf:"profile_sync_interval_s"`

	// PointsPerAction and PointsPerLevel drive scoring.
	PointsPerAction int `koanf:"points_per_action"`
	PointsPerLevel  int `koanf:"points_per_level"`

	// Badges overrides the badge ladder.
	Badges []ledger.Threshold `koanf:"badges"`

	// Target is the default location for gated entries without their own.
	TargetLatitude  float64 `koanf:"target_latitude"`
	TargetLongitude float64 `koanf:"target_longitude"`
	TargetRadiusM   float64 `koanf:"target_radius_m"`

	// Location gate timing.
	LocationPollMS       int `koanf:"location_poll_ms"`
	LocationInitMS       int `koanf:"location_init_ms"`
	LocationInitAttempts int `koanf:"location_init_attempts"`

	// Simulated device location.
	DeviceLatitude     float64 `koanf:"device_latitude"`
	DeviceLongitude    float64 `koanf:"device_longitude"`
	DeviceAccuracyM    float64 `koanf:"device_accuracy_m"`
	LocationPermission bool    `koanf:"location_permission"`
	CameraPermission   bool    `koanf:"camera_permission"`

	// Impact credited per rewarded action.
	CO2PerActionKg    float64 `koanf:"co2_per_action_kg"`
	WaterPerActionL   float64 `koanf:"water_per_action_l"`
	ImpactHistoryDays int     `koanf:"impact_history_days"`

	// Catalog overrides the built-in actions and challenges.
	Catalog []catalog.Entry `koanf:"catalog"`

	// Capture endpoint limits.
	CaptureRatePerSec float64 `koanf:"capture_rate_per_sec"`
	CaptureBurst      int     `koanf:"capture_burst"`
	MaxUploadMB       int     `koanf:"max_upload_mb"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogMaxSizeMB:         100,
		LogMaxBackups:        3,
		LogMaxAgeDays:        28,
		Addr:                 ":9080",
		UserID:               "local-player",
		DataDir:              "data",
		RemoteBackend:        BackendMemory,
		RedisKeyPrefix:       "ecoquest",
		SyncQueueSize:        1024,
		SyncWorkers:          1,
		SyncTimeoutMS:        10_000,
		ProfileSyncIntervalS: 0,
		PointsPerAction:      ledger.DefaultPointsPerAction,
		PointsPerLevel:       ledger.DefaultPointsPerLevel,
		TargetLatitude:       catalog.DefaultTarget.Latitude,
		TargetLongitude:      catalog.DefaultTarget.Longitude,
		TargetRadiusM:        catalog.DefaultTarget.RadiusMeters,
		LocationPollMS:       1000,
		LocationInitMS:       1000,
		LocationInitAttempts: 20,
		DeviceLatitude:       catalog.DefaultTarget.Latitude,
		DeviceLongitude:      catalog.DefaultTarget.Longitude,
		DeviceAccuracyM:      5,
		LocationPermission:   true,
		CameraPermission:     true,
		CO2PerActionKg:       impact.DefaultCO2PerAction,
		WaterPerActionL:      impact.DefaultWaterPerAction,
		ImpactHistoryDays:    impact.DefaultHistoryDays,
		CaptureRatePerSec:    1,
		CaptureBurst:         3,
		MaxUploadMB:          10,
	}
}

// Validate checks the values a service cannot start without.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.UserID) == "":
		return fmt.Errorf("%w: user_id must not be empty", ErrInvalidConfig)
	case c.RemoteBackend != BackendMemory && c.RemoteBackend != BackendRedis:
		return fmt.Errorf("%w: remote_backend must be %q or %q, got %q", ErrInvalidConfig, BackendMemory, BackendRedis, c.RemoteBackend)
	case c.RemoteBackend == BackendRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
	case c.SyncQueueSize <= 0:
		return fmt.Errorf("%w: sync_queue_size must be positive", ErrInvalidConfig)
	case c.PointsPerAction <= 0 || c.PointsPerLevel <= 0:
		return fmt.Errorf("%w: points_per_action and points_per_level must be positive", ErrInvalidConfig)
	case c.ImpactHistoryDays <= 0:
		return fmt.Errorf("%w: impact_history_days must be positive", ErrInvalidConfig)
	case c.CaptureRatePerSec <= 0 || c.CaptureBurst <= 0:
		return fmt.Errorf("%w: capture rate and burst must be positive", ErrInvalidConfig)
	}
	if err := c.Target().Validate(); err != nil {
		return fmt.Errorf("%w: target: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Target returns the default gate target.
func (c *Config) Target() geo.Point {
	return geo.Point{Latitude: c.TargetLatitude, Longitude: c.TargetLongitude, RadiusMeters: c.TargetRadiusM}
}

// DatabasePath resolves the SQLite location.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "ecoquest.db")
}

// PhotoDir is where stored pictures live.
func (c *Config) PhotoDir() string { return filepath.Join(c.DataDir, "photos") }

// CameraDir is where fresh shots and uploads land before they are stored.
func (c *Config) CameraDir() string { return filepath.Join(c.DataDir, "camera") }

// SyncTimeout returns the per-call remote timeout.
func (c *Config) SyncTimeout() time.Duration { return ms(c.SyncTimeoutMS) }

// LocationPoll returns the gate polling interval.
func (c *Config) LocationPoll() time.Duration { return ms(c.LocationPollMS) }

// LocationInit returns the gate initialisation poll interval.
func (c *Config) LocationInit() time.Duration { return ms(c.LocationInitMS) }

// ProfileSyncInterval returns the periodic profile push interval.
func (c *Config) ProfileSyncInterval() time.Duration {
	return time.Duration(c.ProfileSyncIntervalS) * time.Second
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
