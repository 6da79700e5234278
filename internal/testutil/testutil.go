// Package testutil provides shared fixtures for tests that need a decision
// log or an admin HTTP round trip.
package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// NewTestDB opens a migrated database in t.TempDir and closes it when the
// test ends.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// Decisions returns n Keep-Lane decisions in lane 1. Cycle i+1 has speed i
// and total cost 100+i.
func Decisions(n int) []planner.Decision {
	out := make([]planner.Decision, n)
	for i := range out {
		out[i] = planner.Decision{
			Cycle:       i + 1,
			Previous:    vehicle.KeepLane,
			State:       vehicle.KeepLane,
			Lane:        1,
			Speed:       float64(i),
			TargetSpeed: 22,
			Total:       100 + float64(i),
			Candidates: []planner.Candidate{
				{State: vehicle.KeepLane, Feasible: true, Lane: 1, Speed: float64(i)},
			},
		}
	}
	return out
}

// RecordRun starts a run with the default tuning and records ds into it.
// The run id is returned.
func RecordRun(t *testing.T, database *db.DB, label string, ds []planner.Decision) string {
	t.Helper()
	ctx := context.Background()
	runID, err := database.StartRun(ctx, label, config.DefaultTuningConfig())
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	for _, d := range ds {
		d.RunID = runID
		if err := database.RecordDecision(ctx, d); err != nil {
			t.Fatalf("RecordDecision(cycle %d) failed: %v", d.Cycle, err)
		}
	}
	return runID
}

// Get serves a GET for target on h.
func Get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
