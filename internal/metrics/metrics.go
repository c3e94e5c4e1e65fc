// Package metrics exposes Prometheus collectors for the refresh cycle.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"ouraring/internal/oura"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ouraring"

// Metrics groups the collectors updated by the sensor
type Metrics struct {
	refreshes     *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	score         prometheus.Gauge
	lastUpdate    prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Refresh cycles by outcome (updated, unchanged, error).",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of Oura API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed Oura API requests by resource and error kind.",
		}, []string{"resource", "kind"}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sleep_score",
			Help:      "Most recent daily sleep score.",
		}),
		lastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_update_timestamp_seconds",
			Help:      "Unix time of the last refresh that changed the sensor.",
		}),
	}

	reg.MustRegister(m.refreshes, m.fetchDuration, m.fetchErrors, m.score, m.lastUpdate)
	return m
}

// ObserveFetch records one API request
func (m *Metrics) ObserveFetch(resource oura.Resource, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(string(resource)).Observe(elapsed.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(string(resource), oura.ErrorKind(err)).Inc()
	}
}

// ObserveRefresh counts a finished refresh cycle. outcome is ignored when err is set.
func (m *Metrics) ObserveRefresh(outcome string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		outcome = "error"
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// SetScore publishes the current score
func (m *Metrics) SetScore(score int, at time.Time) {
	if m == nil {
		return
	}
	m.score.Set(float64(score))
	m.lastUpdate.Set(float64(at.Unix()))
}
