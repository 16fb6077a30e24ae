// Package capture runs a single photo-proof attempt: location check, image
// acquisition, decoding, local persistence and reward.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/internal/domain/ledger"
	"github.com/okian/ecoquest/pkg/logger"
	"github.com/okian/ecoquest/pkg/metrics"
)

// Capture outcomes used as metric labels.
const (
	outcomeRewarded        = "rewarded"
	outcomeDuplicate       = "duplicate"
	outcomeInvalidLocation = "invalid_location"
	outcomeCancelled       = "cancelled"
	outcomeDenied          = "permission_denied"
	outcomeDecodeError     = "decode_error"
	outcomeError           = "error"
)

// Flow orchestrates capture attempts.
type Flow struct {
	catalog Catalog
	gate    Gate
	camera  Camera
	decoder Decoder
	photos  PhotoStore
	records RecordStore
	ledger  Ledger
	impact  ImpactRecorder

	mu       sync.Mutex
	inFlight map[string]struct{}

	now    func() time.Time
	logger logger.Logger
}

// NewFlow creates a flow. Catalog, decoder, photo store, record store and
// ledger are required; gate, camera and impact recorder are optional.
func NewFlow(cat Catalog, dec Decoder, photos PhotoStore, records RecordStore, l Ledger, opts ...Option) (*Flow, error) {
	if cat == nil || dec == nil || photos == nil || records == nil || l == nil {
		return nil, errors.New("capture flow: missing collaborator")
	}

	f := &Flow{
		catalog:  cat,
		decoder:  dec,
		photos:   photos,
		records:  records,
		ledger:   l,
		inFlight: make(map[string]struct{}),
		now:      time.Now,
		logger:   logger.Get().Named("capture"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Capture runs one attempt for actionID. On abort the returned Result has
// Stage == StageAborted and nothing has been persisted or awarded.
func (f *Flow) Capture(ctx context.Context, actionID string, opts ...AttemptOption) (Result, error) {
	a := attempt{camera: f.camera}
	for _, opt := range opts {
		opt(&a)
	}

	res := Result{AttemptID: uuid.NewString(), ActionID: actionID, Stage: StageIdle}
	start := f.now()

	if !f.acquire(actionID) {
		return res, ErrCaptureInProgress
	}
	defer f.release(actionID)

	log := f.logger
	outcome := outcomeError
	defer func() {
		metrics.RecordCapture(outcome, float64(f.now().Sub(start).Milliseconds()))
	}()

	entry, err := f.catalog.Describe(actionID)
	if err != nil {
		return f.abort(res, err), err
	}

	// LocationCheck
	var (
		sample    *geo.Sample
		gateValid bool
	)
	if entry.RequiresLocation {
		res = advance(res, StageLocationCheck)
		valid := f.gate != nil && f.gate.IsValid()
		if valid {
			// A valid verdict is only recorded together with the fix behind it.
			s, ok := f.gate.CurrentSample()
			valid = ok
			sample = &s
		}
		if !valid {
			outcome = outcomeInvalidLocation
			log.Warn(ctx, "capture rejected: invalid location", logger.String("action_id", actionID))
			return f.abort(res, ErrInvalidLocation), ErrInvalidLocation
		}
		gateValid = true
	}

	// Capturing
	res = advance(res, StageCapturing)
	if a.camera == nil {
		return f.abort(res, ErrNoCamera), ErrNoCamera
	}
	path, err := a.camera.TakePicture(ctx, actionID)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			outcome = outcomeDenied
		}
		err = fmt.Errorf("take picture: %w", err)
		log.Warn(ctx, "capture failed", logger.String("action_id", actionID), logger.Error(err))
		return f.abort(res, err), err
	}
	if path == "" {
		outcome = outcomeCancelled
		log.Info(ctx, "capture cancelled", logger.String("action_id", actionID))
		return f.abort(res, ErrCancelled), ErrCancelled
	}

	// Processing
	res = advance(res, StageProcessing)
	img, err := f.decoder.Decode(ctx, path)
	if err != nil {
		outcome = outcomeDecodeError
		err = fmt.Errorf("%w: %w", ErrDecode, err)
		log.Warn(ctx, "capture failed to decode", logger.String("action_id", actionID), logger.Error(err))
		return f.abort(res, err), err
	}
	res.Image = &img

	// Persisting
	res = advance(res, StagePersisting)
	stored, err := f.photos.Save(ctx, actionID, path, img.Format)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPersist, err)
		log.Error(ctx, "failed to store photo", logger.String("action_id", actionID), logger.Error(err))
		return f.abort(res, err), err
	}
	rec := Record{
		ActionID:      actionID,
		LocalPath:     stored,
		CapturedAt:    f.now().UTC(),
		LocationValid: gateValid,
		Location:      sample,
	}
	if err := f.records.PutPhotoRecord(ctx, rec); err != nil {
		err = fmt.Errorf("%w: %w", ErrPersist, err)
		log.Error(ctx, "failed to store photo record", logger.String("action_id", actionID), logger.Error(err))
		return f.abort(res, err), err
	}
	res.Record = &rec

	// Rewarding
	res = advance(res, StageRewarding)
	award, err := f.ledger.AwardOnce(ctx, actionID)
	if err != nil {
		log.Error(ctx, "failed to award action", logger.String("action_id", actionID), logger.Error(err))
		return res, fmt.Errorf("award: %w", err)
	}
	res.Award = &award
	if award.Awarded {
		outcome = outcomeRewarded
		if f.impact != nil {
			totals := f.impact.Record(ctx)
			res.Impact = &totals
		}
	} else {
		outcome = outcomeDuplicate
	}

	if err := f.ledger.MirrorPhoto(ctx, rec.Mirror()); err != nil {
		log.Warn(ctx, "failed to queue photo mirror", logger.String("action_id", actionID), logger.Error(err))
	}

	res = advance(res, StageIdle)
	log.Info(ctx, "capture complete",
		logger.String("attempt_id", res.AttemptID),
		logger.String("action_id", actionID),
		logger.String("path", stored),
		logger.Bool("awarded", award.Awarded),
		logger.Bool("location_valid", gateValid),
	)
	return res, nil
}

// LoadExisting returns the stored record for actionID, if any.
func (f *Flow) LoadExisting(ctx context.Context, actionID string) (Record, bool, error) {
	return f.records.PhotoRecord(ctx, actionID)
}

// Records lists every stored photo record.
func (f *Flow) Records(ctx context.Context) ([]Record, error) {
	return f.records.PhotoRecords(ctx)
}

// Discover restores local records for photos known only to the remote store
// and returns the restored action ids.
func (f *Flow) Discover(ctx context.Context, remote []ledger.PhotoMirror) ([]string, error) {
	var restored []string
	for _, m := range remote {
		_, ok, err := f.records.PhotoRecord(ctx, m.ActionID)
		if err != nil {
			return restored, fmt.Errorf("discover %q: %w", m.ActionID, err)
		}
		if ok {
			continue
		}
		rec := Record{
			ActionID:      m.ActionID,
			LocalPath:     m.LocalPath,
			CapturedAt:    m.Timestamp,
			LocationValid: m.LocationValid,
		}
		if m.HasLocation {
			rec.Location = &geo.Sample{
				Latitude:  m.Latitude,
				Longitude: m.Longitude,
				Timestamp: m.LocationTimestamp,
			}
		}
		if err := f.records.PutPhotoRecord(ctx, rec); err != nil {
			return restored, fmt.Errorf("discover %q: %w", m.ActionID, err)
		}
		restored = append(restored, m.ActionID)
	}
	if len(restored) > 0 {
		f.logger.Info(ctx, "restored photo records from profile", logger.Int("count", len(restored)))
	}
	return restored, nil
}

func (f *Flow) abort(res Result, cause error) Result {
	res = advance(res, StageAborted)
	f.logger.Debug(context.Background(), "capture aborted",
		logger.String("attempt_id", res.AttemptID),
		logger.String("action_id", res.ActionID),
		logger.Error(cause),
	)
	return res
}

func (f *Flow) acquire(actionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.inFlight[actionID]; busy {
		return false
	}
	f.inFlight[actionID] = struct{}{}
	return true
}

func (f *Flow) release(actionID string) {
	f.mu.Lock()
	delete(f.inFlight, actionID)
	f.mu.Unlock()
}

func advance(res Result, s Stage) Result {
	res.Stage = s
	res.Trace = append(res.Trace, s)
	return res
}
