// Package impact accumulates the environmental savings credited for rewarded actions.
package impact

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/okian/ecoquest/pkg/logger"
)

// Profile store keys and defaults.
const (
	KeyCO2Saved   = "CO2Saved"
	KeyWaterSaved = "WaterSaved"
	KeyDailyData  = "DailyImpactData"

	DefaultCO2PerAction   = 0.5
	DefaultWaterPerAction = 10.0
	DefaultHistoryDays    = 30

	dayLayout = "2006-01-02"
	syncKind  = "impact"
)

// Day is the impact credited on one calendar day.
type Day struct {
	Date        string  `json:"date"`
	CO2Kg       float64 `json:"co2"`
	WaterLiters float64 `json:"water"`
}

// Totals is a snapshot of the tracker.
type Totals struct {
	CO2Kg       float64 `json:"co2_kg"`
	WaterLiters float64 `json:"water_l"`
	History     []Day   `json:"history"`
}

// Pusher forwards fields to the remote profile store.
type Pusher interface {
	PushFields(ctx context.Context, kind string, fields map[string]string) error
}

type history struct {
	Items []Day `json:"items"`
}

// Tracker holds cumulative and daily impact for one user.
type Tracker struct {
	mu sync.Mutex

	co2   float64
	water float64
	days  []Day

	co2PerAction   float64
	waterPerAction float64
	historyDays    int

	pusher Pusher
	now    func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithPerAction sets the CO2 (kg) and water (L) credited per award.
func WithPerAction(co2Kg, waterLiters float64) Option {
	return func(t *Tracker) {
		if co2Kg >= 0 {
			t.co2PerAction = co2Kg
		}
		if waterLiters >= 0 {
			t.waterPerAction = waterLiters
		}
	}
}

// WithHistoryDays caps how many days of history are kept.
func WithHistoryDays(days int) Option {
	return func(t *Tracker) {
		if days > 0 {
			t.historyDays = days
		}
	}
}

// WithPusher sets where changes are synced.
func WithPusher(p Pusher) Option {
	return func(t *Tracker) {
		t.pusher = p
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		co2PerAction:   DefaultCO2PerAction,
		waterPerAction: DefaultWaterPerAction,
		historyDays:    DefaultHistoryDays,
		now:            time.Now,
		logger:         logger.Get().Named("impact"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record credits one rewarded action to the totals and to today's entry.
func (t *Tracker) Record(ctx context.Context) Totals {
	t.mu.Lock()
	t.co2 += t.co2PerAction
	t.water += t.waterPerAction

	today := t.now().Format(dayLayout)
	found := false
	for i := range t.days {
		if t.days[i].Date == today {
			t.days[i].CO2Kg += t.co2PerAction
			t.days[i].WaterLiters += t.waterPerAction
			found = true
			break
		}
	}
	if !found {
		t.days = append(t.days, Day{Date: today, CO2Kg: t.co2PerAction, WaterLiters: t.waterPerAction})
	}
	t.normalizeLocked()
	snap := t.snapshotLocked()
	fields := t.fieldsLocked()
	t.mu.Unlock()

	t.logger.Info(ctx, "impact recorded",
		logger.Float64("co2_kg", snap.CO2Kg),
		logger.Float64("water_l", snap.WaterLiters),
	)
	t.push(ctx, fields)
	return snap
}

// Restore loads totals from profile fields. Malformed values are treated as absent.
func (t *Tracker) Restore(ctx context.Context, fields map[string]string) {
	co2 := t.parseFloat(ctx, fields, KeyCO2Saved)
	water := t.parseFloat(ctx, fields, KeyWaterSaved)

	var h history
	if raw := fields[KeyDailyData]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			t.logger.Warn(ctx, "ignoring malformed impact history", logger.Error(err))
			h.Items = nil
		}
	}

	days := h.Items[:0]
	for _, d := range h.Items {
		if _, err := time.Parse(dayLayout, d.Date); err == nil {
			days = append(days, d)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.co2 = co2
	t.water = water
	t.days = days
	t.normalizeLocked()
}

// Prune drops history outside the retention window and syncs if anything changed.
func (t *Tracker) Prune(ctx context.Context) int {
	cutoff := t.now().AddDate(0, 0, -t.historyDays).Format(dayLayout)

	t.mu.Lock()
	kept := t.days[:0]
	for _, d := range t.days {
		if d.Date > cutoff {
			kept = append(kept, d)
		}
	}
	dropped := len(t.days) - len(kept)
	t.days = kept
	fields := t.fieldsLocked()
	t.mu.Unlock()

	if dropped > 0 {
		t.logger.Debug(ctx, "impact history pruned", logger.Int("dropped", dropped))
		t.push(ctx, fields)
	}
	return dropped
}

// Totals returns a snapshot.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// normalizeLocked keeps days sorted ascending and capped to the newest historyDays.
func (t *Tracker) normalizeLocked() {
	sort.Slice(t.days, func(i, j int) bool { return t.days[i].Date < t.days[j].Date })
	if over := len(t.days) - t.historyDays; over > 0 {
		t.days = append([]Day(nil), t.days[over:]...)
	}
}

func (t *Tracker) snapshotLocked() Totals {
	return Totals{
		CO2Kg:       t.co2,
		WaterLiters: t.water,
		History:     append([]Day{}, t.days...),
	}
}

func (t *Tracker) fieldsLocked() map[string]string {
	data, err := json.Marshal(history{Items: append([]Day{}, t.days...)})
	if err != nil {
		data = []byte(`{"items":[]}`)
	}
	return map[string]string{
		KeyCO2Saved:   strconv.FormatFloat(t.co2, 'f', 2, 64),
		KeyWaterSaved: strconv.FormatFloat(t.water, 'f', 2, 64),
		KeyDailyData:  string(data),
	}
}

func (t *Tracker) parseFloat(ctx context.Context, fields map[string]string, key string) float64 {
	raw, ok := fields[key]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		t.logger.Warn(ctx, "ignoring malformed impact field", logger.String("key", key), logger.String("value", raw))
		return 0
	}
	return v
}

func (t *Tracker) push(ctx context.Context, fields map[string]string) {
	if t.pusher == nil {
		return
	}
	if err := t.pusher.PushFields(ctx, syncKind, fields); err != nil {
		t.logger.Error(ctx, "failed to queue impact sync", logger.Error(fmt.Errorf("impact: %w", err)))
	}
}
