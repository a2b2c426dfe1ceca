// Package metrics exposes refresh and read-side counters to Prometheus
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the refresh, plant and HTTP collectors. Recording on a nil *Metrics is a no-op.
type Metrics struct {
	registry          *prometheus.Registry
	refreshTotal      *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
	plantFailures     *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	gridOutput        prometheus.Gauge
	reactorsActive    prometheus.Gauge
	reactorsReporting prometheus.Gauge
	lastSuccess       prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
}

// New creates the collectors on their own registry so several instances can coexist
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nuclear_refresh_total",
			Help: "Refresh cycles by outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nuclear_refresh_duration_seconds",
			Help:    "Histogram of refresh cycle durations.",
			Buckets: prometheus.DefBuckets,
		}),
		plantFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nuclear_plant_failures_total",
			Help: "Per-plant fetch or extraction failures.",
		}, []string{"plant", "kind"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nuclear_plant_fetch_duration_seconds",
			Help:    "Histogram of per-plant fetch durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"plant"}),
		gridOutput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nuclear_grid_output_mw",
			Help: "Total output of reporting reactors in the latest snapshot.",
		}),
		reactorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nuclear_reactors_active",
			Help: "Reactors with positive output in the latest snapshot.",
		}),
		reactorsReporting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nuclear_reactors_reporting",
			Help: "Reactors with a reading in the latest snapshot.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nuclear_last_snapshot_timestamp_seconds",
			Help: "Unix time of the latest published snapshot.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nuclear_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.plantFailures,
		m.fetchDuration,
		m.gridOutput,
		m.reactorsActive,
		m.reactorsReporting,
		m.lastSuccess,
		m.httpRequestsTotal,
	)

	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RefreshCompleted counts one refresh cycle by outcome and records its duration
func (m *Metrics) RefreshCompleted(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(duration.Seconds())
}

// PlantFailed counts a plant failure labelled with its failure kind
func (m *Metrics) PlantFailed(plant string, err error) {
	if m == nil {
		return
	}
	m.plantFailures.WithLabelValues(plant, entities.FailureKind(err)).Inc()
}

// PlantFetched records how long one plant fetch took
func (m *Metrics) PlantFetched(plant string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(plant).Observe(duration.Seconds())
}

// SnapshotPublished updates the grid gauges
func (m *Metrics) SnapshotPublished(snap *entities.GridSnapshot) {
	if m == nil || snap == nil {
		return
	}
	m.gridOutput.Set(snap.TotalOutput)
	m.reactorsActive.Set(float64(snap.ActiveReactors))
	m.reactorsReporting.Set(float64(snap.TotalReactors))
	m.lastSuccess.Set(float64(snap.BuiltAt.Unix()))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests served by next under the given route label
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		}
	})
}
