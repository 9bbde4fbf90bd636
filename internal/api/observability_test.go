package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"swarm-grid/internal/game"
	"swarm-grid/internal/game/spatial"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTick(t *testing.T) {
	ObserveTick(game.TickStats{
		Tick:       10,
		Particles:  600,
		Duration:   3 * time.Millisecond,
		Query:      2 * time.Millisecond,
		Rebuild:    100 * time.Microsecond,
		Grid:       spatial.GridStats{TotalCells: 144, NonEmptyCells: 120, MaxInCell: 11},
		Candidates: 6000,
		Neighbors:  1500,
	})

	if got := testutil.ToFloat64(particleCount); got != 600 {
		t.Errorf("Expected particle gauge 600, got %g", got)
	}
	if got := testutil.ToFloat64(gridNonEmptyCells); got != 120 {
		t.Errorf("Expected 120 non-empty cells, got %g", got)
	}
	if got := testutil.ToFloat64(gridMaxInCell); got != 11 {
		t.Errorf("Expected max 11 per cell, got %g", got)
	}
	if got := testutil.ToFloat64(queryHitRatio); got != 0.25 {
		t.Errorf("Expected hit ratio 0.25, got %g", got)
	}
}

func TestUpdateRecorderStats(t *testing.T) {
	UpdateRecorderStats(game.RecorderStats{Written: 40, Dropped: 2})

	if got := testutil.ToFloat64(recorderWritten); got != 40 {
		t.Errorf("Expected 40 written, got %g", got)
	}
	if got := testutil.ToFloat64(recorderDropped); got != 2 {
		t.Errorf("Expected 2 dropped, got %g", got)
	}
}

func TestDebugHandler(t *testing.T) {
	tests := []struct {
		name       string
		cfg        ObservabilityConfig
		path       string
		user, pass string
		wantStatus int
	}{
		{"health open", ObservabilityConfig{}, "/health", "", "", http.StatusOK},
		{"metrics open", ObservabilityConfig{}, "/metrics", "", "", http.StatusOK},
		{"auth missing", ObservabilityConfig{BasicAuthUser: "ops", BasicAuthPass: "pw"}, "/health", "", "", http.StatusUnauthorized},
		{"auth wrong", ObservabilityConfig{BasicAuthUser: "ops", BasicAuthPass: "pw"}, "/health", "ops", "nope", http.StatusUnauthorized},
		{"auth ok", ObservabilityConfig{BasicAuthUser: "ops", BasicAuthPass: "pw"}, "/health", "ops", "pw", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			debugHandler(tt.cfg).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestStartDebugServerDisabled(t *testing.T) {
	if srv := StartDebugServer(ObservabilityConfig{Enabled: false}); srv != nil {
		t.Error("Expected no server when disabled")
	}
}
