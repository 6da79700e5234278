package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/highway.planner/internal/api"
	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/httputil"
	"github.com/banshee-data/highway.planner/internal/monitor"
	"github.com/banshee-data/highway.planner/internal/testutil"
)

func setupRun(t *testing.T, cycles int) (*db.DB, string) {
	t.Helper()
	database := testutil.NewTestDB(t)
	return database, testutil.RecordRun(t, database, "plot", testutil.Decisions(cycles))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"run from db", Config{DBPath: "p.db", RunID: "x"}, false},
		{"latest from api", Config{APIURL: "http://h", Latest: true}, false},
		{"no run", Config{DBPath: "p.db"}, true},
		{"both", Config{DBPath: "p.db", RunID: "x", Latest: true}, true},
		{"no source", Config{RunID: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlotRunFromDB(t *testing.T) {
	database, runID := setupRun(t, 5)
	base := t.TempDir()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	files, err := plotRun(context.Background(), database, Config{RunID: runID, OutputDir: base}, "planner.db", now, &out)
	if err != nil {
		t.Fatalf("plotRun failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %v", files)
	}
	wantDir := filepath.Join(base, "planner", "20260314_120000")
	for _, f := range files {
		if filepath.Dir(f) != wantDir {
			t.Errorf("%s not under %s", f, wantDir)
		}
		if !strings.Contains(out.String(), f) {
			t.Errorf("output does not list %s", f)
		}
	}
}

func TestPlotLatestOverAPI(t *testing.T) {
	database, _ := setupRun(t, 4)
	ts := httptest.NewServer(api.NewServer(database, config.DefaultTuningConfig(), nil, "mps").ServeMux())
	defer ts.Close()

	client := api.NewClient(ts.URL, httputil.NewStandardClient(ts.Client()))
	files, err := plotRun(context.Background(), client, Config{Latest: true, OutputDir: t.TempDir()}, "api", time.Now(), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("plotRun failed: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("files = %v", files)
	}
}

func TestPlotRunErrors(t *testing.T) {
	database, _ := setupRun(t, 0)
	ctx := context.Background()

	_, err := plotRun(ctx, database, Config{Latest: true, OutputDir: t.TempDir()}, "x", time.Now(), &bytes.Buffer{})
	if !errors.Is(err, monitor.ErrNoPoints) {
		t.Errorf("empty run error = %v", err)
	}

	_, err = plotRun(ctx, database, Config{RunID: "missing", OutputDir: t.TempDir()}, "x", time.Now(), &bytes.Buffer{})
	if !errors.Is(err, db.ErrRunNotFound) {
		t.Errorf("missing run error = %v", err)
	}

	empty := testutil.NewTestDB(t)
	if _, err := plotRun(ctx, empty, Config{Latest: true}, "x", time.Now(), &bytes.Buffer{}); err == nil {
		t.Error("expected error when no runs are recorded")
	}
}
