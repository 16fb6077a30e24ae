// Package service wires one player's session: location gate, catalog, capture
// flow, reward ledger, impact tracker and the remote sync workers.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/ecoquest/internal/adapters/device"
	syncqueue "github.com/okian/ecoquest/internal/adapters/mq/queue"
	syncworker "github.com/okian/ecoquest/internal/adapters/mq/worker"
	"github.com/okian/ecoquest/internal/adapters/photos"
	"github.com/okian/ecoquest/internal/adapters/prefs"
	"github.com/okian/ecoquest/internal/adapters/profile"
	"github.com/okian/ecoquest/internal/domain/capture"
	"github.com/okian/ecoquest/internal/domain/catalog"
	"github.com/okian/ecoquest/internal/domain/completion"
	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/internal/domain/impact"
	"github.com/okian/ecoquest/internal/domain/ledger"
	"github.com/okian/ecoquest/internal/domain/location"
	"github.com/okian/ecoquest/pkg/logger"
)

const (
	defaultUserID      = "local-player"
	defaultQueueSize   = 1024
	defaultWorkerCount = 1
	defaultSyncTimeout = 10 * time.Second
	drainTimeout       = 10 * time.Second
)

// LocalStore keeps completion flags and photo records on the device.
type LocalStore interface {
	completion.Store
	capture.RecordStore
}

// ActionView is a catalog entry with the player's progress on it.
type ActionView struct {
	catalog.Entry
	Completed bool            `json:"completed"`
	Photo     *capture.Record `json:"photo,omitempty"`
}

// Service is the session of one authenticated player.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	userID   string
	catalog  *catalog.Catalog
	provider location.Provider
	gateOpts []location.Option
	camera   capture.Camera
	decoder  capture.Decoder
	photos   capture.PhotoStore
	local    LocalStore
	remote   profile.Store

	// Built on Start
	gate   *location.Gate
	ledger *ledger.Ledger
	impact *impact.Tracker
	flow   *capture.Flow
	queue  *syncqueue.InMemoryQueue
	pool   *syncworker.Pool
	ownDB  *sql.DB

	// Configuration
	dataDir         string
	queueSize       int
	workerCount     int
	syncTimeout     time.Duration
	pointsPerAction int
	pointsPerLevel  int
	thresholds      []ledger.Threshold
	co2PerAction    float64
	waterPerAction  float64
	historyDays     int

	// State
	started  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	restored []string

	now    func() time.Time
	logger logger.Logger
}

// New constructs a Service. Collaborators left unset get simulated or
// in-memory stand-ins on Start.
func New(opts ...Option) *Service {
	s := &Service{
		userID:          defaultUserID,
		dataDir:         filepath.Join(os.TempDir(), "ecoquest"),
		queueSize:       defaultQueueSize,
		workerCount:     defaultWorkerCount,
		syncTimeout:     defaultSyncTimeout,
		pointsPerAction: ledger.DefaultPointsPerAction,
		pointsPerLevel:  ledger.DefaultPointsPerLevel,
		co2PerAction:    impact.DefaultCO2PerAction,
		waterPerAction:  impact.DefaultWaterPerAction,
		historyDays:     impact.DefaultHistoryDays,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start logs the player in: it loads the remote profile, restores impact and
// photo records, starts the sync workers and the location gate. Remote
// failures are logged and the session starts with an empty profile.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}
	s.logger.Info(ctx, "starting session", logger.String("user_id", s.userID))

	if err := s.defaultsLocked(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.queue = syncqueue.NewInMemoryQueue(
		syncqueue.WithCapacity(s.queueSize),
		syncqueue.WithBufferSize(s.queueSize),
	)
	s.pool = syncworker.NewPool(s.workerCount, s.queue, s.remote, syncworker.WithTimeout(s.syncTimeout))
	s.pool.Start(runCtx)

	tracker, err := completion.NewPersistentTracker(ctx, s.local)
	if err != nil {
		s.abortLocked(cancel)
		return fmt.Errorf("load completion flags: %w", err)
	}

	l, err := ledger.New(s.userID,
		ledger.WithTracker(tracker),
		ledger.WithFetcher(s.remote),
		ledger.WithSyncer(s.queue),
		ledger.WithPointsPerAction(s.pointsPerAction),
		ledger.WithPointsPerLevel(s.pointsPerLevel),
		ledger.WithThresholds(s.thresholds),
		ledger.WithClock(s.now),
	)
	if err != nil {
		s.abortLocked(cancel)
		return fmt.Errorf("create ledger: %w", err)
	}
	s.ledger = l

	s.impact = impact.New(
		impact.WithPerAction(s.co2PerAction, s.waterPerAction),
		impact.WithHistoryDays(s.historyDays),
		impact.WithPusher(l),
		impact.WithClock(s.now),
	)

	gateOpts := append([]location.Option{location.WithTarget(s.initialTargetLocked())}, s.gateOpts...)
	s.gate = location.NewGate(s.provider, gateOpts...)

	flow, err := capture.NewFlow(s.catalog, s.decoder, s.photos, s.local, l,
		capture.WithGate(s.gate),
		capture.WithCamera(s.camera),
		capture.WithImpact(s.impact),
		capture.WithClock(s.now),
	)
	if err != nil {
		s.abortLocked(cancel)
		return fmt.Errorf("create capture flow: %w", err)
	}
	s.flow = flow

	snap, err := l.LoadFromRemote(ctx)
	if err != nil {
		s.logger.Warn(ctx, "continuing with an empty profile", logger.Error(err))
	} else {
		s.impact.Restore(ctx, snap.Fields)
		restored, err := flow.Discover(ctx, snap.Photos)
		if err != nil {
			s.logger.Warn(ctx, "failed to restore photo records", logger.Error(err))
		}
		s.restored = restored
	}

	if err := s.gate.Start(runCtx); err != nil {
		s.logger.Warn(ctx, "location gate not started", logger.Error(err))
	}

	s.runCtx = runCtx
	s.cancel = cancel
	s.started = true
	p := l.Profile()
	s.logger.Info(ctx, "session started",
		logger.String("user_id", s.userID),
		logger.Int("total_points", p.TotalPoints),
		logger.Int("level", p.Level),
		logger.Int("workers", s.pool.Size()),
	)

	return nil
}

// Stop stops the gate, drains pending remote updates and detaches the ledger.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping session...")

	s.gate.Stop()
	s.stopWorkersLocked()
	s.ledger.Close()
	s.cancel()
	s.closeOwnDBLocked()

	s.started = false
	s.logger.Info(ctx, "session stopped")
}

// Actions lists the catalog with the player's progress.
func (s *Service) Actions(ctx context.Context) ([]ActionView, error) {
	flow, l, err := s.live()
	if err != nil {
		return nil, err
	}

	records, err := flow.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("list photo records: %w", err)
	}
	byID := make(map[string]capture.Record, len(records))
	for _, r := range records {
		byID[r.ActionID] = r
	}

	entries := s.catalog.List()
	out := make([]ActionView, 0, len(entries))
	for _, e := range entries {
		v := ActionView{Entry: e}
		if v.Completed, err = l.IsCompleted(ctx, e.ID); err != nil {
			return nil, fmt.Errorf("read completion of %s: %w", e.ID, err)
		}
		if r, ok := byID[e.ID]; ok {
			v.Photo = &r
		}
		out = append(out, v)
	}
	return out, nil
}

// Action returns one catalog entry with the player's progress.
func (s *Service) Action(ctx context.Context, id string) (ActionView, error) {
	flow, l, err := s.live()
	if err != nil {
		return ActionView{}, err
	}

	e, err := s.catalog.Describe(id)
	if err != nil {
		return ActionView{}, err
	}
	v := ActionView{Entry: e}
	if v.Completed, err = l.IsCompleted(ctx, id); err != nil {
		return ActionView{}, fmt.Errorf("read completion of %s: %w", id, err)
	}
	r, ok, err := flow.LoadExisting(ctx, id)
	if err != nil {
		return ActionView{}, fmt.Errorf("load photo of %s: %w", id, err)
	}
	if ok {
		v.Photo = &r
	}
	return v, nil
}

// SelectAction makes id the active entry and points the gate at its target.
func (s *Service) SelectAction(ctx context.Context, id string) (catalog.Entry, error) {
	if _, _, err := s.live(); err != nil {
		return catalog.Entry{}, err
	}

	e, err := s.catalog.Select(id)
	if err != nil {
		return catalog.Entry{}, err
	}
	if e.RequiresLocation {
		s.retarget(id)
	}
	s.logger.Info(ctx, "action selected",
		logger.String("action_id", id),
		logger.Bool("requires_location", e.RequiresLocation),
	)
	return e, nil
}

// Capture runs one attempt for id. Gated entries are checked against their own target.
func (s *Service) Capture(ctx context.Context, id string, opts ...capture.AttemptOption) (capture.Result, error) {
	flow, _, err := s.live()
	if err != nil {
		return capture.Result{}, err
	}
	if s.catalog.RequiresLocation(id) {
		s.retarget(id)
	}
	return flow.Capture(ctx, id, opts...)
}

// CaptureUpload runs an attempt using the uploaded picture instead of the camera.
func (s *Service) CaptureUpload(ctx context.Context, id string, upload io.Reader) (capture.Result, error) {
	if _, _, err := s.live(); err != nil {
		return capture.Result{}, err
	}

	dir := filepath.Join(s.dataDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return capture.Result{}, fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return capture.Result{}, fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // the stored copy lives elsewhere

	if _, err := io.Copy(tmp, upload); err != nil {
		_ = tmp.Close()
		return capture.Result{}, fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return capture.Result{}, fmt.Errorf("write upload: %w", err)
	}

	return s.Capture(ctx, id, capture.UsingCamera(device.FileCamera(tmp.Name())))
}

// Profile returns the player's reward profile.
func (s *Service) Profile() (ledger.Profile, error) {
	_, l, err := s.live()
	if err != nil {
		return ledger.Profile{}, err
	}
	return l.Profile(), nil
}

// Impact returns the environmental impact totals.
func (s *Service) Impact() (impact.Totals, error) {
	if _, _, err := s.live(); err != nil {
		return impact.Totals{}, err
	}
	return s.impact.Totals(), nil
}

// Location returns the gate's current reading.
func (s *Service) Location() (location.Reading, error) {
	if _, _, err := s.live(); err != nil {
		return location.Reading{}, err
	}
	return s.gate.Reading(), nil
}

// WaitLocation blocks until the gate is running or has failed.
func (s *Service) WaitLocation(ctx context.Context) error {
	if _, _, err := s.live(); err != nil {
		return err
	}
	return s.gate.WaitReady(ctx)
}

// RestartLocation retries the gate after a failure or stop.
func (s *Service) RestartLocation(ctx context.Context) error {
	if _, _, err := s.live(); err != nil {
		return err
	}
	s.mu.RLock()
	runCtx := s.runCtx
	s.mu.RUnlock()
	if err := s.gate.Start(runCtx); err != nil {
		return err
	}
	s.logger.Info(ctx, "location gate restarted")
	return nil
}

// SyncStatus returns the outcome of the last remote call.
func (s *Service) SyncStatus() (ledger.SyncStatus, error) {
	_, l, err := s.live()
	if err != nil {
		return ledger.SyncStatus{}, err
	}
	return l.LastSyncStatus(), nil
}

// SyncProfile re-pushes the whole profile.
func (s *Service) SyncProfile(ctx context.Context) error {
	_, l, err := s.live()
	if err != nil {
		return err
	}
	return l.SyncToRemote(ctx)
}

// PruneImpact drops impact history outside the retention window.
func (s *Service) PruneImpact(ctx context.Context) (int, error) {
	if _, _, err := s.live(); err != nil {
		return 0, err
	}
	return s.impact.Prune(ctx), nil
}

// RemotePhotoActions lists the actions the remote profile holds a photo for.
func (s *Service) RemotePhotoActions(ctx context.Context) ([]string, error) {
	_, l, err := s.live()
	if err != nil {
		return nil, err
	}
	mirrors, err := l.RemotePhotos(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		ids = append(ids, m.ActionID)
	}
	return ids, nil
}

// Restored returns the photo records recovered from the remote profile on Start.
func (s *Service) Restored() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.restored...)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"userId":      s.userID,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}

	if s.started {
		p := s.ledger.Profile()
		status := s.ledger.LastSyncStatus()
		stats["queueLength"] = s.queue.Len(context.Background())
		stats["gateState"] = s.gate.State().String()
		stats["totalPoints"] = p.TotalPoints
		stats["level"] = p.Level
		stats["badges"] = len(p.Badges)
		stats["completedActions"] = len(p.Completed)
		stats["restoredPhotos"] = len(s.restored)
		stats["lastSyncOk"] = status.OK
		stats["lastSyncMessage"] = status.Message
	}

	return stats
}

func (s *Service) live() (*capture.Flow, *ledger.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.flow, s.ledger, nil
}

func (s *Service) retarget(id string) {
	target := s.catalog.TargetFor(id)
	if s.gate.Target() != target {
		s.gate.SetTarget(target)
	}
}

// initialTargetLocked returns the active entry's target, else the catalog default.
func (s *Service) initialTargetLocked() geo.Point {
	if e, ok := s.catalog.Active(); ok {
		return s.catalog.TargetFor(e.ID)
	}
	return s.catalog.TargetFor("")
}

// defaultsLocked fills unset collaborators with simulated or in-memory stand-ins.
func (s *Service) defaultsLocked() error {
	if s.catalog == nil {
		c, err := catalog.New(catalog.Defaults())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoCatalog, err)
		}
		s.catalog = c
	}
	if s.provider == nil {
		target := s.catalog.TargetFor("")
		s.provider = device.NewSimulatedLocation(device.WithFix(target.Latitude, target.Longitude, 5))
	}
	if s.camera == nil {
		s.camera = device.NewSimulatedCamera(filepath.Join(s.dataDir, "camera"))
	}
	if s.decoder == nil {
		s.decoder = device.NewDecoder()
	}
	if s.photos == nil {
		s.photos = photos.NewFileStore(filepath.Join(s.dataDir, "photos"))
	}
	if s.remote == nil {
		s.remote = profile.NewMemoryStore()
	}
	if s.local == nil {
		db, err := prefs.Open(":memory:")
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		s.ownDB = db
		s.local = prefs.NewStore(db)
	}
	return nil
}

func (s *Service) stopWorkersLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := s.pool.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn(ctx, "sync queue not fully drained", logger.Error(err))
	}
}

// abortLocked undoes a partial Start.
func (s *Service) abortLocked(cancel context.CancelFunc) {
	s.stopWorkersLocked()
	cancel()
	s.closeOwnDBLocked()
}

func (s *Service) closeOwnDBLocked() {
	if s.ownDB == nil {
		return
	}
	if err := s.ownDB.Close(); err != nil {
		s.logger.Warn(context.Background(), "failed to close local store", logger.Error(err))
	}
	s.ownDB = nil
	s.local = nil
}
