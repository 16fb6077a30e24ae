package impact_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/okian/ecoquest/internal/domain/impact"
	"github.com/okian/ecoquest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fieldPusher struct {
	mu    sync.Mutex
	calls []map[string]string
}

func (p *fieldPusher) PushFields(_ context.Context, kind string, fields map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fields)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestImpactTracker(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tracker with default credits", t, func() {
		c := &clock{t: time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)}
		pusher := &fieldPusher{}
		tr := impact.New(impact.WithClock(c.now), impact.WithPusher(pusher))

		Convey("When two actions are recorded on the same day", func() {
			tr.Record(ctx)
			totals := tr.Record(ctx)

			Convey("Then totals and today's entry should accumulate", func() {
				So(totals.CO2Kg, ShouldEqual, 1.0)
				So(totals.WaterLiters, ShouldEqual, 20.0)
				So(len(totals.History), ShouldEqual, 1)
				So(totals.History[0], ShouldResemble, impact.Day{Date: "2024-05-17", CO2Kg: 1, WaterLiters: 20})
			})

			Convey("Then each record should be synced", func() {
				So(len(pusher.calls), ShouldEqual, 2)
				last := pusher.calls[1]
				So(last[impact.KeyCO2Saved], ShouldEqual, "1.00")
				So(last[impact.KeyWaterSaved], ShouldEqual, "20.00")
				So(last[impact.KeyDailyData], ShouldContainSubstring, `"date":"2024-05-17"`)
			})
		})

		Convey("When actions span more days than the history keeps", func() {
			small := impact.New(impact.WithClock(c.now), impact.WithHistoryDays(3))
			for i := 0; i < 5; i++ {
				small.Record(ctx)
				c.t = c.t.AddDate(0, 0, 1)
			}

			Convey("Then only the newest days should remain, oldest first", func() {
				h := small.Totals().History
				So(len(h), ShouldEqual, 3)
				So(h[0].Date, ShouldEqual, "2024-05-19")
				So(h[2].Date, ShouldEqual, "2024-05-21")
				So(small.Totals().CO2Kg, ShouldEqual, 2.5)
			})
		})

		Convey("When old days fall out of the window", func() {
			tr.Record(ctx)
			c.t = c.t.AddDate(0, 0, 31)
			dropped := tr.Prune(ctx)

			Convey("Then they should be pruned but totals kept", func() {
				So(dropped, ShouldEqual, 1)
				So(tr.Totals().History, ShouldBeEmpty)
				So(tr.Totals().CO2Kg, ShouldEqual, 0.5)
			})
		})
	})

	Convey("Given stored profile fields", t, func() {
		tr := impact.New(impact.WithPerAction(1, 5))
		raw, _ := json.Marshal(map[string]any{"items": []impact.Day{
			{Date: "2024-05-02", CO2Kg: 1, WaterLiters: 5},
			{Date: "2024-05-01", CO2Kg: 2, WaterLiters: 10},
			{Date: "not-a-date", CO2Kg: 9},
		}})

		Convey("When they are well formed", func() {
			tr.Restore(ctx, map[string]string{
				impact.KeyCO2Saved:   "3.00",
				impact.KeyWaterSaved: "15",
				impact.KeyDailyData:  string(raw),
			})

			Convey("Then totals and sorted history should be restored", func() {
				got := tr.Totals()
				So(got.CO2Kg, ShouldEqual, 3)
				So(got.WaterLiters, ShouldEqual, 15)
				So(len(got.History), ShouldEqual, 2)
				So(got.History[0].Date, ShouldEqual, "2024-05-01")
			})
		})

		Convey("When they are malformed", func() {
			tr.Restore(ctx, map[string]string{
				impact.KeyCO2Saved:  "lots",
				impact.KeyDailyData: "{",
			})

			Convey("Then they should be treated as absent", func() {
				got := tr.Totals()
				So(got.CO2Kg, ShouldEqual, 0)
				So(got.History, ShouldBeEmpty)
			})
		})
	})
}
