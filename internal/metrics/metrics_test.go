package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lucianfialho/urban-lullaby/internal/metrics"
)

func TestHandlerExposesCollectors(t *testing.T) {
	metrics.PassesTotal.WithLabelValues("completed").Inc()
	metrics.TracksTotal.WithLabelValues("downloaded").Add(3)
	metrics.StageDuration.WithLabelValues("combine").Observe(2)
	metrics.BroadcastActive.Set(1)
	metrics.BroadcastsTotal.WithLabelValues("superseded").Inc()
	metrics.RotationsTotal.Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, name := range []string{
		`lullaby_passes_total{status="completed"}`,
		`lullaby_tracks_total{result="downloaded"}`,
		`lullaby_stage_duration_seconds_bucket{stage="combine"`,
		"lullaby_broadcast_active 1",
		`lullaby_broadcasts_total{reason="superseded"}`,
		"lullaby_rotations_total",
	} {
		if !strings.Contains(text, name) {
			t.Fatalf("expected %q in metrics output", name)
		}
	}
}
