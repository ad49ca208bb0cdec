package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	VehiclesServed prometheus.Gauge
	ShapesServed   prometheus.Gauge
	SnapshotAge    prometheus.Gauge
	StaleResults   prometheus.Gauge

	Requests     *prometheus.CounterVec // endpoint label
	UpstreamErrs *prometheus.CounterVec // source label
	ComputeTime  prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		VehiclesServed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruterlive_vehicles",
			Help: "Vehicles in the latest merged result.",
		}),
		ShapesServed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruterlive_shapes",
			Help: "Route shapes in the latest result.",
		}),
		SnapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruterlive_snapshot_age_seconds",
			Help: "Age of the timetable snapshot behind the latest result.",
		}),
		StaleResults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruterlive_result_stale",
			Help: "1 if the latest result was computed from degraded inputs.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruterlive_requests_total",
			Help: "API requests served.",
		}, []string{"endpoint"}),
		UpstreamErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruterlive_upstream_errors_total",
			Help: "Upstream fetch failures.",
		}, []string{"source"}),
		ComputeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ruterlive_compute_duration_seconds",
			Help:    "Duration of a full estimation pass.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
	}

	reg.MustRegister(
		c.VehiclesServed, c.ShapesServed, c.SnapshotAge, c.StaleResults,
		c.Requests, c.UpstreamErrs, c.ComputeTime,
	)
	return c
}

// Observe updates the result gauges after a computation pass.
func (c *Collector) Observe(vehicles, shapes int, snapshotAgeSec float64, stale bool) {
	c.VehiclesServed.Set(float64(vehicles))
	c.ShapesServed.Set(float64(shapes))
	c.SnapshotAge.Set(snapshotAgeSec)
	if stale {
		c.StaleResults.Set(1)
	} else {
		c.StaleResults.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
