package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/monitor"
	"github.com/banshee-data/highway.planner/internal/monitoring"
	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/telemetry"
	"github.com/banshee-data/highway.planner/internal/testutil"
	"github.com/banshee-data/highway.planner/internal/vehicle"
	"github.com/banshee-data/highway.planner/internal/version"
)

const telemetryFrame = `42["telemetry",{"x":909.48,"y":1128.67,"s":124.83,"d":6.16,"yaw":0,"speed":44.74,` +
	`"previous_path_x":[910.1,910.5],"previous_path_y":[1128.7,1128.7],"end_path_s":125.6,"end_path_d":6.1,` +
	`"sensor_fusion":[[1,1051.7,1145.7,17.9,0.5,266.9,2.2]]}]`

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"listen", *listen, ":8080"},
		{"sim-listen", *simListen, ":4567"},
		{"grpc-listen", *grpcListen, "localhost:50061"},
		{"config", *configFile, config.DefaultConfigPath},
		{"db", *dbFile, "planner.db"},
		{"units", *unitsFlag, "mps"},
		{"log-ops", *logOps, "-"},
		{"log-trace", *logTrace, ""},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("-%s default = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if *historySize != monitor.DefaultHistorySize {
		t.Errorf("-history default = %d", *historySize)
	}
}

func TestOpenLogWriter(t *testing.T) {
	w, c, err := openLogWriter("")
	if w != nil || c != nil || err != nil {
		t.Errorf("empty destination = %v, %v, %v", w, c, err)
	}
	w, c, err = openLogWriter("-")
	if w != os.Stderr || c != nil || err != nil {
		t.Errorf("- destination = %v, %v, %v", w, c, err)
	}
	if _, _, err := openLogWriter(filepath.Join(t.TempDir(), "missing", "ops.log")); err == nil {
		t.Error("expected error for a file in a missing directory")
	}
}

func TestConfigureLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.log")
	closeLogs, err := configureLogging(path, "", "")
	if err != nil {
		t.Fatalf("configureLogging failed: %v", err)
	}
	t.Cleanup(func() {
		if reset, err := configureLogging("", "", ""); err == nil {
			reset()
		}
	})

	monitoring.Opsf("disk is %d%% full", 91)
	closeLogs()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "disk is 91% full") {
		t.Errorf("ops log = %q", data)
	}
}

func TestLoadTuning(t *testing.T) {
	cfg, err := loadTuning("")
	if err != nil || cfg.GetLanesAvailable() != 3 {
		t.Fatalf("defaults = %+v, %v", cfg, err)
	}
	if _, err := loadTuning("tuning.yaml"); err == nil {
		t.Error("expected error for non-JSON config")
	}
	cfg, err = loadTuning(filepath.Join("..", "..", config.DefaultConfigPath))
	if err != nil {
		t.Fatalf("failed to load repository defaults: %v", err)
	}
	if _, err := plannerFactory(cfg)(); err != nil {
		t.Errorf("planner from repository defaults: %v", err)
	}
}

func TestBuildAdminMux(t *testing.T) {
	database := testutil.NewTestDB(t)

	history := monitor.NewHistory(8)
	sink, recorder := buildSink(database, history, nil)
	history.HandleDecision(context.Background(), planner.Decision{Cycle: 1, State: vehicle.KeepLane, Lane: 1})

	mux, err := buildAdminMux(adminDeps{
		database: database,
		tuning:   config.DefaultTuningConfig(),
		history:  history,
		units:    "mps",
		recorder: recorder,
	})
	if err != nil {
		t.Fatalf("buildAdminMux failed: %v", err)
	}
	if len(sink.(planner.MultiSink)) != 2 {
		t.Errorf("sink = %#v, want recorder and history", sink)
	}

	for _, path := range []string{"/api/config", "/api/latest", "/api/runs", "/charts/live", "/api/stats"} {
		testutil.AssertStatusCode(t, testutil.Get(mux, path).Code, http.StatusOK)
	}

	w := testutil.Get(mux, "/api/stats")
	var stats serviceStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.History != 1 || stats.Feed != nil || stats.Build.Version != version.Version {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBuildAdminMuxWithoutDatabase(t *testing.T) {
	sink, recorder := buildSink(nil, nil, nil)
	if recorder != nil || len(sink.(planner.MultiSink)) != 0 {
		t.Errorf("expected no sinks, got %#v", sink)
	}
	mux, err := buildAdminMux(adminDeps{tuning: config.DefaultTuningConfig(), units: "mps"})
	if err != nil {
		t.Fatalf("buildAdminMux failed: %v", err)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/api/runs", http.StatusServiceUnavailable},
		{"/api/latest", http.StatusServiceUnavailable},
		{"/charts/runs/abc", http.StatusNotFound},
		{"/api/stats", http.StatusOK},
	}
	for _, tt := range tests {
		if w := testutil.Get(mux, tt.path); w.Code != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.status)
		}
	}
}

func TestSimulatorEndToEnd(t *testing.T) {
	database := testutil.NewTestDB(t)

	tuning := config.DefaultTuningConfig()
	history := monitor.NewHistory(8)
	sink, recorder := buildSink(database, history, nil)
	sim, err := telemetry.NewServer(telemetry.ServerConfig{
		NewPlanner: plannerFactory(tuning),
		Sink:       sink,
		StartRun: func(ctx context.Context) (string, error) {
			return database.StartRun(ctx, "simulator", tuning)
		},
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(sim)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Write(ctx, websocket.MessageText, []byte(telemetryFrame)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		_, reply, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if !strings.HasPrefix(string(reply), `42["control",`) {
			t.Fatalf("reply = %s", reply)
		}
	}
	c.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if written, _ := recorder.Stats(); written == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("decisions were not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	runs, err := database.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Label != "simulator" || runs[0].Cycles != 2 {
		t.Fatalf("runs = %+v", runs)
	}
	if history.Len() != 2 {
		t.Errorf("history holds %d decisions", history.Len())
	}
	summary, err := database.RunSummary(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("RunSummary failed: %v", err)
	}
	total := 0
	for _, n := range summary.States {
		total += n
	}
	if summary.Cycles != 2 || total != 2 {
		t.Errorf("summary = %+v", summary)
	}
}
