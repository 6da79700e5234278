package testutil

import (
	"context"
	"net/http"
	"testing"
)

func TestRecordRun(t *testing.T) {
	database := NewTestDB(t)
	runID := RecordRun(t, database, "fixture", Decisions(4))

	cycles, err := database.Cycles(context.Background(), runID, 0)
	if err != nil {
		t.Fatalf("Cycles failed: %v", err)
	}
	if len(cycles) != 4 || cycles[3].Speed != 3 || cycles[3].TotalCost != 103 {
		t.Errorf("unexpected cycles: %+v", cycles)
	}
	candidates, err := database.Candidates(context.Background(), runID, 2)
	if err != nil || len(candidates) != 1 {
		t.Errorf("candidates = %+v, %v", candidates, err)
	}
}

func TestGet(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Query().Get("q") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	AssertStatusCode(t, Get(h, "/x?q=1").Code, http.StatusAccepted)
	AssertStatusCode(t, Get(h, "/x").Code, http.StatusBadRequest)
}
