package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "ecoquest")
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(3*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.refreshInterval, ShouldEqual, 3*time.Second)
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})

			Convey("And metric names should carry the prefix", func() {
				manager.awards.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_pfx_awards_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When passing empty option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "ecoquest")
				So(manager.subsystem, ShouldEqual, "core")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording awards", func() {
			before := testutil.ToFloat64(globalManager.awards)
			RecordAward()
			RecordAward()

			Convey("Then the counter should increase", func() {
				So(testutil.ToFloat64(globalManager.awards), ShouldEqual, before+2)
			})
		})

		Convey("When recording captures by outcome", func() {
			before := testutil.ToFloat64(globalManager.captures.WithLabelValues("rewarded"))
			RecordCapture("rewarded", 12)

			Convey("Then the labelled counter should increase", func() {
				So(testutil.ToFloat64(globalManager.captures.WithLabelValues("rewarded")), ShouldEqual, before+1)
			})
		})

		Convey("When recording a location fix", func() {
			RecordLocationFix(1500, true)

			Convey("Then distance and validity gauges should be set", func() {
				So(testutil.ToFloat64(globalManager.distanceToTarget), ShouldEqual, 1500)
				So(testutil.ToFloat64(globalManager.locationValid), ShouldEqual, 1)
			})

			RecordLocationFix(10000, false)
			So(testutil.ToFloat64(globalManager.locationValid), ShouldEqual, 0)
		})

		Convey("When updating the profile gauges", func() {
			UpdateProfile(12, 2)

			Convey("Then points and level should be published", func() {
				So(testutil.ToFloat64(globalManager.totalPoints), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.level), ShouldEqual, 2)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordDuplicateAward()
					RecordBadgeUnlock("Débutant")
					RecordRemoteSync("profile", "ok", 3)
					UpdateSyncQueueSize(4)
					UpdateSyncQueueCapacity(64)
					UpdateSyncWorkerCount(2)
					UpdateGateState(3)
					RecordHTTPRequest("profile", "GET", "200")
					RecordHTTPRequestDuration("profile", "GET", "200", 1.5)
					RecordErrorByComponent("ledger", "parse_error")
					RecordErrorByEndpoint("capture", "POST", "client_error")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(8)
				}, ShouldNotPanic)
			})
		})

		Convey("When gathering the custom registry", func() {
			families, err := GetRegistry().Gather()

			Convey("Then every family should belong to the service namespace", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				for _, f := range families {
					So(strings.HasPrefix(f.GetName(), "ecoquest_core_"), ShouldBeTrue)
				}
			})
		})
	})
}
