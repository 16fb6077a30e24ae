package config_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/ecoquest/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.UserID, convey.ShouldEqual, "local-player")
			convey.So(cfg.RemoteBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.SyncQueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.SyncWorkers, convey.ShouldEqual, 1)
			convey.So(cfg.PointsPerAction, convey.ShouldEqual, 1)
			convey.So(cfg.PointsPerLevel, convey.ShouldEqual, 10)
			convey.So(cfg.LocationInitAttempts, convey.ShouldEqual, 20)
			convey.So(cfg.ImpactHistoryDays, convey.ShouldEqual, 30)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the default target is the Paris site", func() {
			target := cfg.Target()
			convey.So(target.Latitude, convey.ShouldEqual, 48.84769)
			convey.So(target.Longitude, convey.ShouldEqual, 2.387231)
			convey.So(target.RadiusMeters, convey.ShouldEqual, 2000)
		})

		convey.Convey("Then derived paths and durations follow the raw values", func() {
			convey.So(cfg.DatabasePath(), convey.ShouldEqual, filepath.Join("data", "ecoquest.db"))
			convey.So(cfg.PhotoDir(), convey.ShouldEqual, filepath.Join("data", "photos"))
			convey.So(cfg.CameraDir(), convey.ShouldEqual, filepath.Join("data", "camera"))
			convey.So(cfg.SyncTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.LocationPoll(), convey.ShouldEqual, time.Second)
			convey.So(cfg.ProfileSyncInterval(), convey.ShouldEqual, time.Duration(0))

			cfg.DBPath = ":memory:"
			convey.So(cfg.DatabasePath(), convey.ShouldEqual, ":memory:")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configs", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":            func(c *config.Config) { c.Addr = " " },
			"empty user":            func(c *config.Config) { c.UserID = "" },
			"unknown backend":       func(c *config.Config) { c.RemoteBackend = "playfab" },
			"redis without address": func(c *config.Config) { c.RemoteBackend = config.BackendRedis },
			"zero queue":            func(c *config.Config) { c.SyncQueueSize = 0 },
			"zero points per level": func(c *config.Config) { c.PointsPerLevel = 0 },
			"zero history":          func(c *config.Config) { c.ImpactHistoryDays = 0 },
			"zero capture rate":     func(c *config.Config) { c.CaptureRatePerSec = 0 },
			"latitude out of range": func(c *config.Config) { c.TargetLatitude = 91 },
			"negative radius":       func(c *config.Config) { c.TargetRadiusM = -1 },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)

			convey.Convey("Then "+name+" should be rejected", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then redis with an address should pass", func() {
			cfg := config.New()
			cfg.RemoteBackend = config.BackendRedis
			cfg.RedisAddr = "localhost:6379"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
