package service_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/ecoquest/internal/adapters/device"
	"github.com/okian/ecoquest/internal/adapters/profile"
	service "github.com/okian/ecoquest/internal/app"
	"github.com/okian/ecoquest/internal/domain/capture"
	"github.com/okian/ecoquest/internal/domain/location"
	"github.com/okian/ecoquest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// newSession builds a session with fast gate timings over the given remote store.
func newSession(t *testing.T, remote profile.Store, provider location.Provider) *service.Service {
	return service.New(
		service.WithUserID("player-1"),
		service.WithDataDir(t.TempDir()),
		service.WithRemoteStore(remote),
		service.WithLocationProvider(provider),
		service.WithGateOptions(
			location.WithPollInterval(10*time.Millisecond),
			location.WithInitPolicy(5, 5*time.Millisecond),
		),
	)
}

func startSession(svc *service.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	So(svc.Start(ctx), ShouldBeNil)
	So(svc.WaitLocation(ctx), ShouldBeNil)
}

func pngBytes() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	img.SetNRGBA(2, 2, color.NRGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should not be started", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Then every session call should report it is not started", func() {
			_, err := svc.Profile()
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Capture(context.Background(), "Recycler")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Actions(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service with in-memory stand-ins", t, func() {
		svc := service.New(service.WithDataDir(t.TempDir()))
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["userId"], ShouldEqual, "local-player")
				So(stats["level"], ShouldEqual, 1)
			})

			Convey("And when stopping it", func() {
				svc.Stop()
				svc.Stop()

				Convey("Then it should be marked as stopped", func() {
					So(svc.GetStats()["started"], ShouldEqual, false)
				})
			})
		})
	})
}

func TestService_FirstLogin(t *testing.T) {
	Convey("Given a player without a remote profile", t, func() {
		remote := profile.NewMemoryStore()
		svc := newSession(t, remote, device.NewSimulatedLocation())

		Convey("When the session starts and stops", func() {
			startSession(svc)
			svc.Stop()

			Convey("Then a default profile is initialised remotely", func() {
				fields, err := remote.Fetch(context.Background(), "player-1")
				So(err, ShouldBeNil)
				So(fields["TotalPoints"], ShouldEqual, "0")
				So(fields["Level"], ShouldEqual, "1")
				So(fields["CompletedChallenges"], ShouldEqual, "0")
				So(fields["Badges"], ShouldEqual, "[]")
				So(fields["CreatedAt"], ShouldNotBeEmpty)
			})
		})
	})
}

func TestService_Capture(t *testing.T) {
	Convey("Given a started session near the Paris target", t, func() {
		ctx := context.Background()
		remote := profile.NewMemoryStore()
		provider := device.NewSimulatedLocation(device.WithFix(48.8500, 2.3900, 5))
		svc := newSession(t, remote, provider)
		startSession(svc)
		defer svc.Stop()

		Convey("When an ungated action is captured", func() {
			res, err := svc.Capture(ctx, "Recycler")

			Convey("Then points, badge and impact are credited", func() {
				So(err, ShouldBeNil)
				So(res.Stage, ShouldEqual, capture.StageIdle)
				So(res.Award.Awarded, ShouldBeTrue)
				p, _ := svc.Profile()
				So(p.TotalPoints, ShouldEqual, 1)
				So(p.Badges, ShouldResemble, []string{"Débutant"})
				totals, _ := svc.Impact()
				So(totals.CO2Kg, ShouldEqual, 0.5)
				So(totals.WaterLiters, ShouldEqual, 10)
			})

			Convey("Then capturing it again pays nothing more", func() {
				again, err := svc.Capture(ctx, "Recycler")
				So(err, ShouldBeNil)
				So(again.Award.Awarded, ShouldBeFalse)
				p, _ := svc.Profile()
				So(p.TotalPoints, ShouldEqual, 1)
				totals, _ := svc.Impact()
				So(totals.CO2Kg, ShouldEqual, 0.5)
			})

			Convey("Then the action shows as completed with its photo", func() {
				v, err := svc.Action(ctx, "Recycler")
				So(err, ShouldBeNil)
				So(v.Completed, ShouldBeTrue)
				So(v.Photo, ShouldNotBeNil)
				So(v.Photo.LocationValid, ShouldBeFalse)
			})

			Convey("Then the remote profile holds the award after the queue drains", func() {
				svc.Stop()
				fields, err := remote.Fetch(ctx, "player-1")
				So(err, ShouldBeNil)
				So(fields["TotalPoints"], ShouldEqual, "1")
				So(fields["EcoAction_Recycler_Completed"], ShouldEqual, "true")
				So(fields["EcoAction_Recycler_HasPhoto"], ShouldEqual, "true")
				So(fields["CO2Saved"], ShouldEqual, "0.50")
			})
		})

		Convey("When a gated challenge is captured inside the radius", func() {
			res, err := svc.Capture(ctx, "ZeroPlastique")

			Convey("Then it is rewarded with the fix recorded", func() {
				So(err, ShouldBeNil)
				So(res.Award.Awarded, ShouldBeTrue)
				So(res.Record.LocationValid, ShouldBeTrue)
				So(res.Record.Location, ShouldNotBeNil)
				So(res.Trace, ShouldContain, capture.StageLocationCheck)
			})
		})

		Convey("When the player is far away", func() {
			provider.MoveTo(45.7640, 4.8357, 5)
			res, err := svc.Capture(ctx, "ZeroPlastique")

			Convey("Then the gated capture is aborted without a reward", func() {
				So(errors.Is(err, capture.ErrInvalidLocation), ShouldBeTrue)
				So(res.Stage, ShouldEqual, capture.StageAborted)
				p, _ := svc.Profile()
				So(p.TotalPoints, ShouldEqual, 0)
				v, _ := svc.Action(ctx, "ZeroPlastique")
				So(v.Completed, ShouldBeFalse)
				So(v.Photo, ShouldBeNil)
			})

			Convey("Then ungated actions still work", func() {
				res, err := svc.Capture(ctx, "EteindreLumiere")
				So(err, ShouldBeNil)
				So(res.Award.Awarded, ShouldBeTrue)
			})
		})

		Convey("When a gated challenge is selected", func() {
			e, err := svc.SelectAction(ctx, "NettoyageCollectif")

			Convey("Then the gate follows its target", func() {
				So(err, ShouldBeNil)
				So(e.RequiresLocation, ShouldBeTrue)
				r, err := svc.Location()
				So(err, ShouldBeNil)
				So(r.State, ShouldEqual, "running")
				So(r.Target.RadiusMeters, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When an unknown action is selected", func() {
			_, err := svc.SelectAction(ctx, "Nope")

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When a picture is uploaded", func() {
			res, err := svc.CaptureUpload(ctx, "UtiliserGourde", bytes.NewReader(pngBytes()))

			Convey("Then it is decoded, stored and rewarded", func() {
				So(err, ShouldBeNil)
				So(res.Image.Format, ShouldEqual, "png")
				So(res.Image.Width, ShouldEqual, 8)
				So(filepath.Base(res.Record.LocalPath), ShouldStartWith, "eco_action_utilisergourde-")
				So(res.Record.LocalPath, ShouldEndWith, ".png")
				So(res.Award.Awarded, ShouldBeTrue)
			})
		})

		Convey("When the upload is not a picture", func() {
			res, err := svc.CaptureUpload(ctx, "UtiliserGourde", strings.NewReader("not an image"))

			Convey("Then the attempt fails at decoding and nothing is paid", func() {
				So(errors.Is(err, capture.ErrDecode), ShouldBeTrue)
				So(res.Stage, ShouldEqual, capture.StageAborted)
				p, _ := svc.Profile()
				So(p.TotalPoints, ShouldEqual, 0)
			})
		})
	})
}

func TestService_Restore(t *testing.T) {
	Convey("Given a remote profile from an earlier install", t, func() {
		ctx := context.Background()
		remote := profile.NewMemoryStore()
		So(remote.Update(ctx, "player-1", map[string]string{
			"TotalPoints":                       "7",
			"Level":                             "1",
			"CompletedChallenges":               "7",
			"Badges":                            `["Débutant"]`,
			"CreatedAt":                         "2024-05-01 08:00:00",
			"EcoAction_Recycler_Completed":      "true",
			"EcoAction_Recycler_HasPhoto":       "true",
			"EcoAction_Recycler_PhotoLocalPath": "/old/eco_action_recycler.jpg",
			"EcoAction_Recycler_PhotoTimestamp": "2024-05-02 10:00:00",
			"CO2Saved":                          "3.50",
			"WaterSaved":                        "70.00",
		}), ShouldBeNil)

		svc := newSession(t, remote, device.NewSimulatedLocation())
		startSession(svc)
		defer svc.Stop()

		Convey("Then points, badges and impact are restored", func() {
			p, err := svc.Profile()
			So(err, ShouldBeNil)
			So(p.TotalPoints, ShouldEqual, 7)
			So(p.Badges, ShouldResemble, []string{"Débutant", "Apprenti"})
			totals, _ := svc.Impact()
			So(totals.CO2Kg, ShouldEqual, 3.5)
		})

		Convey("Then remote photos are restored as local records", func() {
			So(svc.Restored(), ShouldResemble, []string{"Recycler"})
			v, err := svc.Action(ctx, "Recycler")
			So(err, ShouldBeNil)
			So(v.Completed, ShouldBeTrue)
			So(v.Photo.LocalPath, ShouldEqual, "/old/eco_action_recycler.jpg")

			ids, err := svc.RemotePhotoActions(ctx)
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"Recycler"})
		})

		Convey("Then a previously completed action is not paid again", func() {
			res, err := svc.Capture(ctx, "Recycler")
			So(err, ShouldBeNil)
			So(res.Award.Awarded, ShouldBeFalse)
			p, _ := svc.Profile()
			So(p.TotalPoints, ShouldEqual, 7)
		})
	})
}

func TestService_RemoteUnavailable(t *testing.T) {
	Convey("Given a remote store that is down", t, func() {
		remote := profile.NewMemoryStore()
		remote.FailWith(errors.New("backend down"))
		svc := newSession(t, remote, device.NewSimulatedLocation())

		Convey("When the session starts", func() {
			startSession(svc)
			defer svc.Stop()

			Convey("Then it runs with an empty profile and reports the failure", func() {
				p, err := svc.Profile()
				So(err, ShouldBeNil)
				So(p.TotalPoints, ShouldEqual, 0)
				status, _ := svc.SyncStatus()
				So(status.OK, ShouldBeFalse)
				So(status.Message, ShouldStartWith, "sync failed")
			})

			Convey("Then local awards still succeed", func() {
				res, err := svc.Capture(context.Background(), "Recycler")
				So(err, ShouldBeNil)
				So(res.Award.Awarded, ShouldBeTrue)
			})
		})
	})
}

func TestService_LocationDenied(t *testing.T) {
	Convey("Given a device that refuses location", t, func() {
		provider := device.NewSimulatedLocation(device.WithPermission(false, false))
		svc := newSession(t, profile.NewMemoryStore(), provider)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Then the gate fails and gated captures are refused", func() {
			So(errors.Is(svc.WaitLocation(ctx), location.ErrPermissionDenied), ShouldBeTrue)
			_, err := svc.Capture(ctx, "ObjetRecycle")
			So(errors.Is(err, capture.ErrInvalidLocation), ShouldBeTrue)
		})

		Convey("Then granting permission and restarting recovers", func() {
			_ = svc.WaitLocation(ctx)
			provider.Revoke(true)
			So(svc.RestartLocation(ctx), ShouldBeNil)
			So(svc.WaitLocation(ctx), ShouldBeNil)
			r, _ := svc.Location()
			So(r.State, ShouldEqual, "running")
		})
	})
}
