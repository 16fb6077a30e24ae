package capture

import (
	"context"
	"time"

	"github.com/okian/ecoquest/internal/domain/catalog"
	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/internal/domain/impact"
	"github.com/okian/ecoquest/internal/domain/ledger"
)

// Stage is a step of a capture attempt.
type Stage int

// Capture stages.
const (
	StageIdle Stage = iota
	StageLocationCheck
	StageCapturing
	StageProcessing
	StagePersisting
	StageRewarding
	StageAborted
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageLocationCheck:
		return "location_check"
	case StageCapturing:
		return "capturing"
	case StageProcessing:
		return "processing"
	case StagePersisting:
		return "persisting"
	case StageRewarding:
		return "rewarding"
	case StageAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText renders the stage name in JSON.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Record is the stored photo of one action. One per action, last write wins.
type Record struct {
	ActionID      string      `json:"action_id"`
	LocalPath     string      `json:"local_path"`
	CapturedAt    time.Time   `json:"captured_at"`
	LocationValid bool        `json:"location_valid"`
	Location      *geo.Sample `json:"location,omitempty"`
}

// Mirror converts the record to its remote form.
func (r Record) Mirror() ledger.PhotoMirror {
	m := ledger.PhotoMirror{
		ActionID:      r.ActionID,
		Timestamp:     r.CapturedAt,
		LocalPath:     r.LocalPath,
		LocationValid: r.LocationValid,
	}
	if r.Location != nil {
		m.HasLocation = true
		m.Latitude = r.Location.Latitude
		m.Longitude = r.Location.Longitude
		m.LocationTimestamp = r.Location.Timestamp
	}
	return m
}

// Image describes a decoded picture.
type Image struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Result is the outcome of one attempt.
type Result struct {
	AttemptID string         `json:"attempt_id"`
	ActionID  string         `json:"action_id"`
	Stage     Stage          `json:"stage"`
	Trace     []Stage        `json:"trace"`
	Image     *Image         `json:"image,omitempty"`
	Record    *Record        `json:"record,omitempty"`
	Award     *ledger.Award  `json:"award,omitempty"`
	Impact    *impact.Totals `json:"impact,omitempty"`
}

// Catalog answers whether an action is gated.
type Catalog interface {
	Describe(id string) (catalog.Entry, error)
}

// Gate is the location validity source.
type Gate interface {
	IsValid() bool
	CurrentSample() (geo.Sample, bool)
}

// Camera acquires a picture. An empty path with a nil error means the user cancelled.
type Camera interface {
	TakePicture(ctx context.Context, actionID string) (string, error)
}

// Decoder reads an image from path.
type Decoder interface {
	Decode(ctx context.Context, path string) (Image, error)
}

// PhotoStore copies a picture to its stable per-action location and returns that path.
type PhotoStore interface {
	Save(ctx context.Context, actionID, srcPath, format string) (string, error)
}

// RecordStore persists photo records locally.
type RecordStore interface {
	PutPhotoRecord(ctx context.Context, r Record) error
	PhotoRecord(ctx context.Context, actionID string) (Record, bool, error)
	PhotoRecords(ctx context.Context) ([]Record, error)
}

// Ledger pays rewards and mirrors photo metadata.
type Ledger interface {
	AwardOnce(ctx context.Context, actionID string) (ledger.Award, error)
	MirrorPhoto(ctx context.Context, m ledger.PhotoMirror) error
}

// ImpactRecorder credits environmental impact for an award.
type ImpactRecorder interface {
	Record(ctx context.Context) impact.Totals
}
