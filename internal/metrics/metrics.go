// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PassesTotal counts finished passes by outcome (completed, broadcasting,
	// failed, skipped).
	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lullaby_passes_total",
			Help: "Pipeline passes by outcome",
		},
		[]string{"status"},
	)
	// StageDuration observes how long each pipeline stage takes.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lullaby_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"stage"},
	)
	// TracksTotal counts catalogue entries by acquisition result.
	TracksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lullaby_tracks_total",
			Help: "Catalogue entries by acquisition result",
		},
		[]string{"result"},
	)
	// BroadcastActive is 1 while an ffmpeg push to the ingestion endpoint runs.
	BroadcastActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lullaby_broadcast_active",
			Help: "Whether a live broadcast is currently running",
		},
	)
	// BroadcastsTotal counts broadcast exits by reason.
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lullaby_broadcasts_total",
			Help: "Broadcast sessions by exit reason",
		},
		[]string{"reason"},
	)
	// RotationsTotal counts day-boundary rotations.
	RotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lullaby_rotations_total",
			Help: "Day-boundary rotations performed",
		},
	)
)

func init() {
	prometheus.MustRegister(PassesTotal, StageDuration, TracksTotal, BroadcastActive, BroadcastsTotal, RotationsTotal)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
