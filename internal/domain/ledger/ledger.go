// Package ledger keeps a player's reward profile: points, level, completed
// challenges and badges. Awards are paid once per action and every mutation is
// pushed to the remote profile store without waiting for it.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ecoquest/internal/domain/completion"
	"github.com/okian/ecoquest/pkg/logger"
	"github.com/okian/ecoquest/pkg/metrics"
)

// Default scoring constants.
const (
	DefaultPointsPerAction = 1
	DefaultPointsPerLevel  = 10
)

// Threshold unlocks Badge once total points reach Points.
type Threshold struct {
	Points int    `json:"points" koanf:"points"`
	Badge  string `json:"badge" koanf:"badge"`
}

// DefaultThresholds returns the built-in badge ladder.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Points: 1, Badge: "Débutant"},
		{Points: 5, Badge: "Apprenti"},
		{Points: 10, Badge: "Écologiste"},
		{Points: 20, Badge: "Éco-innovateur"},
		{Points: 35, Badge: "Défenseur"},
		{Points: 50, Badge: "Champion de la Terre"},
	}
}

// Profile is the reward state of one user.
type Profile struct {
	UserID              string    `json:"user_id"`
	TotalPoints         int       `json:"total_points"`
	Level               int       `json:"level"`
	CompletedChallenges int       `json:"completed_challenges"`
	Badges              []string  `json:"badges"`
	CreatedAt           time.Time `json:"created_at"`
	Completed           []string  `json:"completed_actions"`
}

// Award is the outcome of AwardOnce.
type Award struct {
	ActionID    string   `json:"action_id"`
	Awarded     bool     `json:"awarded"`
	TotalPoints int      `json:"total_points"`
	Level       int      `json:"level"`
	LevelUp     bool     `json:"level_up"`
	NewBadges   []string `json:"new_badges,omitempty"`
}

// Snapshot is what LoadFromRemote read.
type Snapshot struct {
	Profile     Profile           `json:"profile"`
	Photos      []PhotoMirror     `json:"photos"`
	Fields      map[string]string `json:"-"`
	Initialized bool              `json:"initialized"`
}

// Ledger owns the reward profile of one authenticated user.
type Ledger struct {
	mu sync.Mutex

	userID              string
	totalPoints         int
	level               int
	completedChallenges int
	badges              []string
	createdAt           time.Time

	tracker    completion.Tracker
	fetcher    Fetcher
	syncer     Syncer
	thresholds []Threshold

	pointsPerAction int
	pointsPerLevel  int

	statusMu sync.RWMutex
	status   SyncStatus
	closed   atomic.Bool

	now    func() time.Time
	logger logger.Logger
}

// New creates a ledger for userID with an empty profile at level 1.
func New(userID string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		userID:          userID,
		level:           1,
		tracker:         completion.NewInMemoryTracker(),
		thresholds:      DefaultThresholds(),
		pointsPerAction: DefaultPointsPerAction,
		pointsPerLevel:  DefaultPointsPerLevel,
		now:             time.Now,
		logger:          logger.Get().Named("ledger"),
	}

	for _, opt := range opts {
		opt(l)
	}

	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidConfig)
	}
	if l.pointsPerAction <= 0 {
		return nil, fmt.Errorf("%w: points per action must be positive", ErrInvalidConfig)
	}
	if l.pointsPerLevel <= 0 {
		return nil, fmt.Errorf("%w: points per level must be positive", ErrInvalidConfig)
	}
	sort.SliceStable(l.thresholds, func(i, j int) bool { return l.thresholds[i].Points < l.thresholds[j].Points })
	for _, t := range l.thresholds {
		if t.Badge == "" || t.Points < 0 {
			return nil, fmt.Errorf("%w: bad threshold %+v", ErrInvalidConfig, t)
		}
	}

	return l, nil
}

// UserID returns the owner of the ledger.
func (l *Ledger) UserID() string { return l.userID }

// AwardOnce pays the per-action reward the first time actionID completes.
// Later calls return Awarded=false and change nothing.
func (l *Ledger) AwardOnce(ctx context.Context, actionID string) (Award, error) {
	if l.closed.Load() {
		return Award{}, ErrClosed
	}

	l.mu.Lock()
	already, err := l.tracker.MarkOnce(ctx, actionID)
	if err != nil {
		l.mu.Unlock()
		metrics.RecordErrorByComponent("ledger", "completion_store")
		return Award{}, fmt.Errorf("award %q: %w", actionID, err)
	}
	if already {
		a := Award{ActionID: actionID, TotalPoints: l.totalPoints, Level: l.level}
		l.mu.Unlock()
		metrics.RecordDuplicateAward()
		l.logger.Info(ctx, "action already rewarded", logger.String("action_id", actionID))
		return a, nil
	}

	prevLevel := l.level
	l.totalPoints += l.pointsPerAction
	l.completedChallenges++
	l.recomputeLevelLocked()
	newBadges := l.recomputeBadgesLocked()

	a := Award{
		ActionID:    actionID,
		Awarded:     true,
		TotalPoints: l.totalPoints,
		Level:       l.level,
		LevelUp:     l.level > prevLevel,
		NewBadges:   newBadges,
	}
	fields := l.profileFieldsLocked()
	fields[ActionKey(actionID, SuffixCompleted)] = "true"
	l.mu.Unlock()

	metrics.RecordAward()
	metrics.UpdateProfile(a.TotalPoints, a.Level)
	for _, b := range newBadges {
		metrics.RecordBadgeUnlock(b)
	}
	l.logger.Info(ctx, "action rewarded",
		logger.String("action_id", actionID),
		logger.Int("total_points", a.TotalPoints),
		logger.Int("level", a.Level),
		logger.Any("new_badges", newBadges),
	)

	_ = l.push(ctx, SyncAward, fields)
	return a, nil
}

// RecomputeBadges adds every badge whose threshold is met and returns the new ones.
func (l *Ledger) RecomputeBadges() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recomputeBadgesLocked()
}

// RecomputeLevel derives the level from total points. It never lowers it.
func (l *Ledger) RecomputeLevel() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recomputeLevelLocked()
	return l.level
}

// SyncToRemote pushes the full profile. Remote failures are reported through
// LastSyncStatus, not here.
func (l *Ledger) SyncToRemote(ctx context.Context) error {
	l.mu.Lock()
	fields := l.profileFieldsLocked()
	l.mu.Unlock()
	return l.push(ctx, SyncProfile, fields)
}

// MirrorPhoto pushes a photo record's metadata.
func (l *Ledger) MirrorPhoto(ctx context.Context, m PhotoMirror) error {
	return l.push(ctx, SyncPhoto, m.Fields())
}

// PushFields sends arbitrary fields for the ledger's user.
func (l *Ledger) PushFields(ctx context.Context, kind string, fields map[string]string) error {
	return l.push(ctx, kind, fields)
}

// LoadFromRemote replaces local state with the remote profile. Missing fields
// default to zero, malformed fields are treated as missing. A user with no
// profile yet gets one initialised and pushed.
func (l *Ledger) LoadFromRemote(ctx context.Context) (Snapshot, error) {
	var fields map[string]string
	if l.fetcher != nil {
		var err error
		fields, err = l.fetcher.Fetch(ctx, l.userID)
		if err != nil {
			l.setStatus(SyncProfile, err)
			return Snapshot{}, fmt.Errorf("load profile: %w", err)
		}
	}

	if _, ok := fields[KeyTotalPoints]; !ok {
		return l.initialize(ctx, fields), nil
	}

	l.mu.Lock()
	l.totalPoints = l.parseCount(ctx, fields, KeyTotalPoints)
	l.completedChallenges = l.parseCount(ctx, fields, KeyCompletedChallenges)
	l.level = 1
	l.recomputeLevelLocked()
	if remote := l.parseCount(ctx, fields, KeyLevel); remote != 0 && remote != l.level {
		l.logger.Warn(ctx, "remote level disagrees with points",
			logger.Int("remote_level", remote), logger.Int("level", l.level))
	}

	badges, err := DecodeBadges(fields[KeyBadges])
	if err != nil {
		l.logger.Warn(ctx, "ignoring malformed badges", logger.Error(err))
		metrics.RecordErrorByComponent("ledger", "parse_error")
		badges = nil
	}
	l.badges = badges
	l.recomputeBadgesLocked()

	l.createdAt = time.Time{}
	if raw, ok := fields[KeyCreatedAt]; ok {
		if ts, err := ParseTime(raw); err == nil {
			l.createdAt = ts
		} else {
			l.logger.Warn(ctx, "ignoring malformed creation time", logger.String("value", raw))
		}
	}
	l.mu.Unlock()

	for _, id := range completedFromFields(fields) {
		if _, err := l.tracker.MarkOnce(ctx, id); err != nil {
			l.logger.Warn(ctx, "failed to restore completion flag",
				logger.String("action_id", id), logger.Error(err))
		}
	}

	p := l.Profile()
	metrics.UpdateProfile(p.TotalPoints, p.Level)
	l.setStatus(SyncProfile, nil)
	l.logger.Info(ctx, "profile loaded",
		logger.Int("total_points", p.TotalPoints),
		logger.Int("level", p.Level),
		logger.Int("badges", len(p.Badges)),
	)

	return Snapshot{Profile: p, Photos: photosFromFields(fields), Fields: fields}, nil
}

// RemotePhotos lists the photos the remote profile knows about.
func (l *Ledger) RemotePhotos(ctx context.Context) ([]PhotoMirror, error) {
	if l.fetcher == nil {
		return nil, nil
	}
	fields, err := l.fetcher.Fetch(ctx, l.userID)
	if err != nil {
		l.setStatus(SyncPhoto, err)
		return nil, fmt.Errorf("list remote photos: %w", err)
	}
	return photosFromFields(fields), nil
}

// Profile returns a copy of the current profile.
func (l *Ledger) Profile() Profile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Profile{
		UserID:              l.userID,
		TotalPoints:         l.totalPoints,
		Level:               l.level,
		CompletedChallenges: l.completedChallenges,
		Badges:              append([]string{}, l.badges...),
		CreatedAt:           l.createdAt,
		Completed:           l.tracker.Completed(),
	}
}

// IsCompleted reports whether actionID was already rewarded.
func (l *Ledger) IsCompleted(ctx context.Context, actionID string) (bool, error) {
	return l.tracker.IsCompleted(ctx, actionID)
}

// LastSyncStatus returns the outcome of the most recent remote call.
func (l *Ledger) LastSyncStatus() SyncStatus {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}

// Close detaches the ledger. Callbacks of in-flight remote calls become no-ops.
func (l *Ledger) Close() {
	l.closed.Store(true)
}

func (l *Ledger) initialize(ctx context.Context, fields map[string]string) Snapshot {
	l.mu.Lock()
	l.totalPoints = 0
	l.level = 1
	l.completedChallenges = 0
	l.badges = nil
	l.createdAt = l.now().UTC().Truncate(time.Second)
	init := l.profileFieldsLocked()
	l.mu.Unlock()

	l.logger.Info(ctx, "initialising new profile", logger.String("user_id", l.userID))
	if err := l.push(ctx, SyncInit, init); err != nil {
		l.logger.Warn(ctx, "failed to queue profile initialisation", logger.Error(err))
	}
	metrics.UpdateProfile(0, 1)

	return Snapshot{Profile: l.Profile(), Photos: photosFromFields(fields), Fields: fields, Initialized: true}
}

// recomputeLevelLocked must be called with l.mu held.
func (l *Ledger) recomputeLevelLocked() {
	if derived := l.totalPoints/l.pointsPerLevel + 1; derived > l.level {
		l.level = derived
	}
}

// recomputeBadgesLocked must be called with l.mu held.
func (l *Ledger) recomputeBadgesLocked() []string {
	var added []string
	for _, t := range l.thresholds {
		if l.totalPoints < t.Points || l.hasBadgeLocked(t.Badge) {
			continue
		}
		l.badges = append(l.badges, t.Badge)
		added = append(added, t.Badge)
	}
	return added
}

func (l *Ledger) hasBadgeLocked(name string) bool {
	for _, b := range l.badges {
		if b == name {
			return true
		}
	}
	return false
}

// profileFieldsLocked must be called with l.mu held.
func (l *Ledger) profileFieldsLocked() map[string]string {
	fields := map[string]string{
		KeyTotalPoints:         strconv.Itoa(l.totalPoints),
		KeyLevel:               strconv.Itoa(l.level),
		KeyCompletedChallenges: strconv.Itoa(l.completedChallenges),
		KeyBadges:              EncodeBadges(l.badges),
	}
	if !l.createdAt.IsZero() {
		fields[KeyCreatedAt] = FormatTime(l.createdAt)
	}
	return fields
}

func (l *Ledger) parseCount(ctx context.Context, fields map[string]string, key string) int {
	raw, ok := fields[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		l.logger.Warn(ctx, "ignoring malformed profile field",
			logger.String("key", key), logger.String("value", raw))
		metrics.RecordErrorByComponent("ledger", "parse_error")
		return 0
	}
	return n
}

func (l *Ledger) push(ctx context.Context, kind string, fields map[string]string) error {
	if l.syncer == nil {
		return nil
	}

	start := l.now()
	err := l.syncer.Push(ctx, Update{
		UserID: l.userID,
		Kind:   kind,
		Fields: fields,
		Done: func(err error) {
			if l.closed.Load() {
				return
			}
			l.setStatus(kind, err)
			if err != nil {
				l.logger.Error(context.Background(), "remote sync failed",
					logger.String("kind", kind), logger.Error(err))
				return
			}
			l.logger.Debug(context.Background(), "remote sync complete",
				logger.String("kind", kind), logger.Duration("elapsed", l.now().Sub(start)))
		},
	})
	if err != nil {
		l.setStatus(kind, err)
		l.logger.Error(ctx, "failed to queue remote sync", logger.String("kind", kind), logger.Error(err))
		return fmt.Errorf("queue %s sync: %w", kind, err)
	}
	return nil
}

func (l *Ledger) setStatus(kind string, err error) {
	s := SyncStatus{Kind: kind, OK: err == nil, At: FormatTime(l.now())}
	if err != nil {
		s.Message = "sync failed: " + err.Error()
	} else {
		s.Message = "synced"
	}

	l.statusMu.Lock()
	l.status = s
	l.statusMu.Unlock()
}
