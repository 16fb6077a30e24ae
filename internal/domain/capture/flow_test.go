package capture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/ecoquest/internal/domain/capture"
	"github.com/okian/ecoquest/internal/domain/catalog"
	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/internal/domain/impact"
	"github.com/okian/ecoquest/internal/domain/ledger"
	"github.com/okian/ecoquest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type stubGate struct {
	valid    bool
	noSample bool
	sample   geo.Sample
	calls    int
}

func (g *stubGate) IsValid() bool {
	g.calls++
	return g.valid
}

func (g *stubGate) CurrentSample() (geo.Sample, bool) { return g.sample, g.valid && !g.noSample }

type stubCamera struct {
	path    string
	err     error
	calls   int
	entered chan struct{}
	block   chan struct{}
}

func (c *stubCamera) TakePicture(context.Context, string) (string, error) {
	c.calls++
	if c.block != nil {
		close(c.entered)
		<-c.block
	}
	return c.path, c.err
}

type stubDecoder struct{ err error }

func (d stubDecoder) Decode(context.Context, string) (capture.Image, error) {
	if d.err != nil {
		return capture.Image{}, d.err
	}
	return capture.Image{Format: "png", Width: 4, Height: 4}, nil
}

type memPhotos struct {
	mu    sync.Mutex
	saved map[string]string
}

func (p *memPhotos) Save(_ context.Context, actionID, src, format string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dst := "/photos/eco_action_" + actionID + "." + format
	p.saved[actionID] = src
	return dst, nil
}

type memRecords struct {
	mu   sync.Mutex
	recs map[string]capture.Record
}

func (r *memRecords) PutPhotoRecord(_ context.Context, rec capture.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ActionID] = rec
	return nil
}

func (r *memRecords) PhotoRecord(_ context.Context, id string) (capture.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	return rec, ok, nil
}

func (r *memRecords) PhotoRecords(context.Context) ([]capture.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]capture.Record, 0, len(r.recs))
	for _, rec := range r.recs {
		out = append(out, rec)
	}
	return out, nil
}

type mirrorSyncer struct {
	mu      sync.Mutex
	updates []ledger.Update
}

func (s *mirrorSyncer) Push(_ context.Context, u ledger.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *mirrorSyncer) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.updates))
	for _, u := range s.updates {
		out = append(out, u.Kind)
	}
	return out
}

type fixture struct {
	flow    *capture.Flow
	gate    *stubGate
	camera  *stubCamera
	photos  *memPhotos
	records *memRecords
	ledger  *ledger.Ledger
	impact  *impact.Tracker
	syncer  *mirrorSyncer
}

func newFixture(dec capture.Decoder) *fixture {
	cat, err := catalog.New(catalog.Defaults())
	So(err, ShouldBeNil)

	fx := &fixture{
		gate: &stubGate{sample: geo.Sample{
			Latitude: 48.84769, Longitude: 2.387231, HorizontalAccuracy: 4,
			Timestamp: time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC),
		}},
		camera:  &stubCamera{path: "/tmp/shot.png"},
		photos:  &memPhotos{saved: map[string]string{}},
		records: &memRecords{recs: map[string]capture.Record{}},
		syncer:  &mirrorSyncer{},
	}
	fx.ledger, err = ledger.New("player-1", ledger.WithSyncer(fx.syncer))
	So(err, ShouldBeNil)
	fx.impact = impact.New()

	fx.flow, err = capture.NewFlow(cat, dec, fx.photos, fx.records, fx.ledger,
		capture.WithGate(fx.gate),
		capture.WithCamera(fx.camera),
		capture.WithImpact(fx.impact),
	)
	So(err, ShouldBeNil)
	return fx
}

func TestGatedCapture(t *testing.T) {
	ctx := context.Background()

	Convey("Given a gated challenge", t, func() {
		fx := newFixture(stubDecoder{})

		Convey("When the location is invalid", func() {
			fx.gate.valid = false
			res, err := fx.flow.Capture(ctx, "ZeroPlastique")

			Convey("Then the attempt should abort before capturing", func() {
				So(errors.Is(err, capture.ErrInvalidLocation), ShouldBeTrue)
				So(res.Stage, ShouldEqual, capture.StageAborted)
				So(res.Trace, ShouldResemble, []capture.Stage{capture.StageLocationCheck, capture.StageAborted})
				So(fx.camera.calls, ShouldEqual, 0)
			})

			Convey("Then nothing should be persisted or awarded", func() {
				So(fx.records.recs, ShouldBeEmpty)
				So(fx.photos.saved, ShouldBeEmpty)
				So(fx.ledger.Profile().TotalPoints, ShouldEqual, 0)
				So(fx.syncer.kinds(), ShouldBeEmpty)
				So(fx.impact.Totals().CO2Kg, ShouldEqual, 0)
			})
		})

		Convey("When the gate is valid but has no fix to attach", func() {
			fx.gate.valid = true
			fx.gate.noSample = true
			res, err := fx.flow.Capture(ctx, "ZeroPlastique")

			Convey("Then the attempt should be refused as an invalid location", func() {
				So(errors.Is(err, capture.ErrInvalidLocation), ShouldBeTrue)
				So(res.Stage, ShouldEqual, capture.StageAborted)
				So(fx.camera.calls, ShouldEqual, 0)
				So(fx.records.recs, ShouldBeEmpty)
			})
		})

		Convey("When the location is valid", func() {
			fx.gate.valid = true
			res, err := fx.flow.Capture(ctx, "ZeroPlastique")

			Convey("Then every stage should run", func() {
				So(err, ShouldBeNil)
				So(res.AttemptID, ShouldNotBeEmpty)
				So(res.Trace, ShouldResemble, []capture.Stage{
					capture.StageLocationCheck, capture.StageCapturing, capture.StageProcessing,
					capture.StagePersisting, capture.StageRewarding, capture.StageIdle,
				})
			})

			Convey("Then exactly one record and one award should exist", func() {
				So(len(fx.records.recs), ShouldEqual, 1)
				rec := fx.records.recs["ZeroPlastique"]
				So(rec.LocalPath, ShouldEqual, "/photos/eco_action_ZeroPlastique.png")
				So(rec.LocationValid, ShouldBeTrue)
				So(rec.Location, ShouldNotBeNil)
				So(rec.Location.Latitude, ShouldEqual, 48.84769)
				So(res.Award.Awarded, ShouldBeTrue)
				So(fx.ledger.Profile().TotalPoints, ShouldEqual, 1)
				So(fx.syncer.kinds(), ShouldResemble, []string{ledger.SyncAward, ledger.SyncPhoto})
			})

			Convey("Then impact should be credited once", func() {
				So(res.Impact, ShouldNotBeNil)
				So(fx.impact.Totals().CO2Kg, ShouldEqual, 0.5)
				So(fx.impact.Totals().WaterLiters, ShouldEqual, 10)
			})

			Convey("Then a re-capture should update metadata without paying again", func() {
				again, err := fx.flow.Capture(ctx, "ZeroPlastique")
				So(err, ShouldBeNil)
				So(again.Award.Awarded, ShouldBeFalse)
				So(again.Impact, ShouldBeNil)
				So(fx.ledger.Profile().TotalPoints, ShouldEqual, 1)
				So(fx.impact.Totals().CO2Kg, ShouldEqual, 0.5)
				So(len(fx.records.recs), ShouldEqual, 1)
				So(fx.syncer.kinds(), ShouldResemble, []string{
					ledger.SyncAward, ledger.SyncPhoto, ledger.SyncPhoto,
				})
			})
		})
	})
}

func TestUngatedCapture(t *testing.T) {
	ctx := context.Background()

	Convey("Given a simple action", t, func() {
		fx := newFixture(stubDecoder{})

		Convey("When captured with the gate invalid", func() {
			res, err := fx.flow.Capture(ctx, "Recycler")

			Convey("Then the gate should not be consulted", func() {
				So(err, ShouldBeNil)
				So(fx.gate.calls, ShouldEqual, 0)
				So(res.Trace[0], ShouldEqual, capture.StageCapturing)
				So(res.Record.LocationValid, ShouldBeFalse)
				So(res.Record.Location, ShouldBeNil)
			})
		})

		Convey("When the user cancels", func() {
			fx.camera.path = ""
			res, err := fx.flow.Capture(ctx, "Recycler")

			Convey("Then the attempt should abort without side effects", func() {
				So(errors.Is(err, capture.ErrCancelled), ShouldBeTrue)
				So(res.Stage, ShouldEqual, capture.StageAborted)
				So(fx.records.recs, ShouldBeEmpty)
				So(fx.ledger.Profile().TotalPoints, ShouldEqual, 0)
			})
		})

		Convey("When camera permission is denied", func() {
			fx.camera.err = capture.ErrPermissionDenied
			_, err := fx.flow.Capture(ctx, "Recycler")
			So(errors.Is(err, capture.ErrPermissionDenied), ShouldBeTrue)
			So(fx.records.recs, ShouldBeEmpty)
		})

		Convey("When a different camera is passed for one attempt", func() {
			other := &stubCamera{path: "/tmp/upload.png"}
			_, err := fx.flow.Capture(ctx, "Recycler", capture.UsingCamera(other))
			So(err, ShouldBeNil)
			So(other.calls, ShouldEqual, 1)
			So(fx.camera.calls, ShouldEqual, 0)
			So(fx.photos.saved["Recycler"], ShouldEqual, "/tmp/upload.png")
		})

		Convey("When the action is unknown", func() {
			_, err := fx.flow.Capture(ctx, "Nope")
			So(errors.Is(err, catalog.ErrUnknownAction), ShouldBeTrue)
		})
	})

	Convey("Given an unreadable image", t, func() {
		fx := newFixture(stubDecoder{err: errors.New("bad header")})
		res, err := fx.flow.Capture(ctx, "Recycler")

		Convey("Then the attempt should abort in processing", func() {
			So(errors.Is(err, capture.ErrDecode), ShouldBeTrue)
			So(res.Trace, ShouldResemble, []capture.Stage{capture.StageCapturing, capture.StageProcessing, capture.StageAborted})
			So(fx.records.recs, ShouldBeEmpty)
			So(fx.photos.saved, ShouldBeEmpty)
			So(fx.ledger.Profile().TotalPoints, ShouldEqual, 0)
		})
	})

	Convey("Given a capture already running for an action", t, func() {
		fx := newFixture(stubDecoder{})
		fx.camera.block = make(chan struct{})
		fx.camera.entered = make(chan struct{})

		done := make(chan error, 1)
		go func() {
			_, err := fx.flow.Capture(ctx, "Recycler")
			done <- err
		}()
		<-fx.camera.entered

		Convey("Then a second attempt for the same action should be refused", func() {
			_, err := fx.flow.Capture(ctx, "Recycler", capture.UsingCamera(&stubCamera{path: "/tmp/x.png"}))
			So(errors.Is(err, capture.ErrCaptureInProgress), ShouldBeTrue)

			close(fx.camera.block)
			So(<-done, ShouldBeNil)
			So(fx.ledger.Profile().TotalPoints, ShouldEqual, 1)
		})
	})
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()

	Convey("Given remote photo mirrors", t, func() {
		fx := newFixture(stubDecoder{})
		_ = fx.records.PutPhotoRecord(ctx, capture.Record{ActionID: "Recycler", LocalPath: "/local.png"})

		remote := []ledger.PhotoMirror{
			{ActionID: "Recycler", LocalPath: "/remote.png"},
			{ActionID: "ZeroPlastique", LocalPath: "/remote-zp.png", HasLocation: true, Latitude: 1, Longitude: 2},
		}
		restored, err := fx.flow.Discover(ctx, remote)

		Convey("Then only missing records should be restored", func() {
			So(err, ShouldBeNil)
			So(restored, ShouldResemble, []string{"ZeroPlastique"})
			rec, ok, _ := fx.flow.LoadExisting(ctx, "Recycler")
			So(ok, ShouldBeTrue)
			So(rec.LocalPath, ShouldEqual, "/local.png")
			zp, ok, _ := fx.flow.LoadExisting(ctx, "ZeroPlastique")
			So(ok, ShouldBeTrue)
			So(zp.Location.Longitude, ShouldEqual, 2)
			all, _ := fx.flow.Records(ctx)
			So(len(all), ShouldEqual, 2)
		})
	})
}
