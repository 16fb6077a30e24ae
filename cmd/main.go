package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/ecoquest/internal/adapters/device"
	"github.com/okian/ecoquest/internal/adapters/http/api"
	"github.com/okian/ecoquest/internal/adapters/http/swagger"
	"github.com/okian/ecoquest/internal/adapters/prefs"
	"github.com/okian/ecoquest/internal/adapters/profile"
	service "github.com/okian/ecoquest/internal/app"
	"github.com/okian/ecoquest/internal/config"
	"github.com/okian/ecoquest/internal/domain/catalog"
	"github.com/okian/ecoquest/internal/domain/location"
	"github.com/okian/ecoquest/pkg/logger"
	"github.com/okian/ecoquest/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	redisPingTimeout  = 5 * time.Second
	impactPruneEvery  = time.Hour
	bytesPerMegabyte  = 1 << 20
)

func main() {
	// Drop the default Go collectors; system metrics are published by the scheduler.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		// Use stderr since the logger may not be available
		os.Stderr.WriteString("ecoquest: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	db, err := prefs.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer closeDB(ctx, db)

	remote, closeRemote, err := newRemoteStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRemote()

	svc, err := newService(cfg, db, remote)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer svc.Stop()

	sched, err := startScheduler(cfg, svc)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Warn(ctx, "scheduler shutdown failed", logger.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

func initLogging(cfg *config.Config) error {
	var opts []logger.Option
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress))
	}
	if err := logger.Init(opts...); err != nil {
		return err
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// newRemoteStore builds the profile store selected by remote_backend.
func newRemoteStore(ctx context.Context, cfg *config.Config) (profile.Store, func(), error) {
	if cfg.RemoteBackend != config.BackendRedis {
		return profile.NewMemoryStore(), func() {}, nil
	}

	client := profile.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	store := profile.NewRedisStore(client, profile.WithKeyPrefix(cfg.RedisKeyPrefix))

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		// The session still starts; remote calls fail and are reported in sync status.
		logger.Get().Warn(ctx, "profile store unreachable", logger.String("addr", cfg.RedisAddr), logger.Error(err))
	}

	return store, func() { _ = client.Close() }, nil
}

func newCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	entries := cfg.Catalog
	if len(entries) == 0 {
		entries = catalog.Defaults()
	}
	c, err := catalog.New(entries, catalog.WithDefaultTarget(cfg.Target()))
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return c, nil
}

func newService(cfg *config.Config, db *sql.DB, remote profile.Store) (*service.Service, error) {
	cat, err := newCatalog(cfg)
	if err != nil {
		return nil, err
	}

	provider := device.NewSimulatedLocation(
		device.WithFix(cfg.DeviceLatitude, cfg.DeviceLongitude, cfg.DeviceAccuracyM),
		device.WithPermission(cfg.LocationPermission, cfg.LocationPermission),
	)
	camera := device.NewSimulatedCamera(cfg.CameraDir())
	camera.SetPermission(cfg.CameraPermission)

	return service.New(
		service.WithLogger(logger.Get().Named("session")),
		service.WithUserID(cfg.UserID),
		service.WithDataDir(cfg.DataDir),
		service.WithCatalog(cat),
		service.WithLocationProvider(provider),
		service.WithGateOptions(
			location.WithPollInterval(cfg.LocationPoll()),
			location.WithInitPolicy(cfg.LocationInitAttempts, cfg.LocationInit()),
		),
		service.WithCamera(camera),
		service.WithLocalStore(prefs.NewStore(db)),
		service.WithRemoteStore(remote),
		service.WithQueueSize(cfg.SyncQueueSize),
		service.WithWorkerCount(cfg.SyncWorkers),
		service.WithSyncTimeout(cfg.SyncTimeout()),
		service.WithScoring(cfg.PointsPerAction, cfg.PointsPerLevel, cfg.Badges),
		service.WithImpact(cfg.CO2PerActionKg, cfg.WaterPerActionL, cfg.ImpactHistoryDays),
	), nil
}

func newMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithCaptureRateLimit(cfg.CaptureRatePerSec, cfg.CaptureBurst),
		api.WithMaxUploadBytes(int64(cfg.MaxUploadMB)*bytesPerMegabyte),
	)
	apiServer.Register(ctx, mux)
	return mux
}

// startScheduler runs the periodic jobs: system metrics, impact history
// pruning and the full profile push.
func startScheduler(cfg *config.Config, svc *service.Service) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	log := logger.Get().Named("scheduler")

	jobs := []struct {
		name  string
		every time.Duration
		task  func()
	}{
		{"system-metrics", metrics.RefreshInterval(), updateSystemMetrics},
		{"impact-prune", impactPruneEvery, func() {
			ctx := context.Background()
			if n, err := svc.PruneImpact(ctx); err != nil {
				log.Warn(ctx, "impact prune failed", logger.Error(err))
			} else if n > 0 {
				log.Info(ctx, "impact history pruned", logger.Int("days", n))
			}
		}},
		{"profile-sync", cfg.ProfileSyncInterval(), func() {
			ctx := context.Background()
			if err := svc.SyncProfile(ctx); err != nil {
				log.Warn(ctx, "periodic profile sync failed", logger.Error(err))
			}
		}},
	}

	for _, j := range jobs {
		if j.every <= 0 {
			continue
		}
		if _, err := sched.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(j.task),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	sched.Start()
	return sched, nil
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func closeDB(ctx context.Context, db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Get().Warn(ctx, "failed to close local store", logger.Error(err))
	}
}
