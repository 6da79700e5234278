// Package main replays a captured simulator session through the planner.
// Every client websocket flow in the capture becomes one recorded run, and a
// summary of each run is printed when the capture is exhausted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/telemetry"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// Config holds configuration for a replay.
type Config struct {
	PCAPFile   string
	DBPath     string
	ConfigPath string
	Port       int
	JSON       bool
	Verbose    bool
}

// ReplayResult summarises a replay.
type ReplayResult struct {
	PCAPFile         string              `json:"pcap_file"`
	Capture          telemetry.PcapStats `json:"capture"`
	Frames           int                 `json:"frames"`
	Malformed        int                 `json:"malformed"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
	Runs             []db.RunSummary     `json:"runs"`
	Flows            map[string]string   `json:"flows"`
}

func main() {
	cfg := parseFlags()

	if cfg.PCAPFile == "" {
		log.Fatal("PCAP file is required")
	}
	if _, err := os.Stat(cfg.PCAPFile); os.IsNotExist(err) {
		log.Fatalf("PCAP file not found: %s", cfg.PCAPFile)
	}
	var diag io.Writer
	if cfg.Verbose {
		diag = os.Stderr
	}
	telemetry.SetLogWriters(os.Stderr, diag, nil)
	planner.SetLogWriters(os.Stderr, diag, nil)
	db.SetLogWriters(os.Stderr, diag, nil)

	tuning := config.DefaultTuningConfig()
	if cfg.ConfigPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(cfg.ConfigPath); err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runReplay(ctx, cfg, database, tuning)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	if cfg.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Fatalf("Failed to write JSON: %v", err)
		}
		return
	}
	printResult(os.Stdout, result)
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Path to PCAP file of a simulator session")
	flag.StringVar(&cfg.DBPath, "db", "replay.db", "SQLite database the runs are recorded to")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning JSON file (default: built-in defaults)")
	flag.IntVar(&cfg.Port, "port", 4567, "Simulator server TCP port in the capture")
	flag.BoolVar(&cfg.JSON, "json", false, "Print the result as JSON")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")

	flag.Parse()

	return cfg
}

func runReplay(ctx context.Context, cfg Config, database *db.DB, tuning *config.TuningConfig) (*ReplayResult, error) {
	start := time.Now()
	r := newReplayer(database, tuning)

	stats, err := telemetry.ReadPcapFile(ctx, cfg.PCAPFile, cfg.Port, func(f telemetry.Frame) error {
		return r.handleFrame(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	result, err := r.result(ctx)
	if err != nil {
		return nil, err
	}
	result.PCAPFile = cfg.PCAPFile
	result.Capture = stats
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// replayer runs one planner per captured flow.
type replayer struct {
	database   *db.DB
	tuning     *config.TuningConfig
	plannerCfg planner.Config

	sessions  map[string]*telemetry.Session
	runs      map[string]string
	frames    int
	malformed int
}

func newReplayer(database *db.DB, tuning *config.TuningConfig) *replayer {
	return &replayer{
		database:   database,
		tuning:     tuning,
		plannerCfg: planner.ConfigFromTuning(tuning),
		sessions:   make(map[string]*telemetry.Session),
		runs:       make(map[string]string),
	}
}

func (r *replayer) handleFrame(ctx context.Context, f telemetry.Frame) error {
	r.frames++
	s, ok := r.sessions[f.Flow]
	if !ok {
		p, err := planner.New(r.plannerCfg)
		if err != nil {
			return err
		}
		runID, err := r.database.StartRun(ctx, "pcap "+f.Flow, r.tuning)
		if err != nil {
			return err
		}
		p.SetRunID(runID)
		p.SetSink(planner.SinkFunc(func(ctx context.Context, d planner.Decision) {
			if err := r.database.RecordDecision(ctx, d); err != nil {
				log.Printf("flow %s cycle %d: %v", f.Flow, d.Cycle, err)
			}
		}))
		s = telemetry.NewSession(p, nil)
		r.sessions[f.Flow] = s
		r.runs[f.Flow] = runID
	}

	_, _, err := s.Handle(ctx, f.Text)
	switch {
	case errors.Is(err, telemetry.ErrNotEvent):
	case err != nil:
		r.malformed++
	}
	return nil
}

func (r *replayer) result(ctx context.Context) (*ReplayResult, error) {
	flows := make([]string, 0, len(r.runs))
	for flow := range r.runs {
		flows = append(flows, flow)
	}
	sort.Strings(flows)

	res := &ReplayResult{
		Frames:    r.frames,
		Malformed: r.malformed,
		Flows:     r.runs,
	}
	for _, flow := range flows {
		sum, err := r.database.RunSummary(ctx, r.runs[flow])
		if err != nil {
			return nil, fmt.Errorf("summary for %s: %w", flow, err)
		}
		res.Runs = append(res.Runs, sum)
	}
	return res, nil
}

func printResult(w io.Writer, res *ReplayResult) {
	fmt.Fprintf(w, "Capture: %s\n", res.PCAPFile)
	fmt.Fprintf(w, "  packets=%d streams=%d frames=%d gaps=%d malformed=%d (%d ms)\n",
		res.Capture.Packets, res.Capture.Streams, res.Frames, res.Capture.Gaps, res.Malformed, res.ProcessingTimeMs)
	for _, sum := range res.Runs {
		fmt.Fprintf(w, "\nRun %s\n", sum.RunID)
		fmt.Fprintf(w, "  cycles=%d lane_changes=%d fallbacks=%d final_s=%.1f\n",
			sum.Cycles, sum.LaneChanges, sum.Fallbacks, sum.FinalS)
		fmt.Fprintf(w, "  speed mean=%.2f stddev=%.2f max=%.2f m/s\n", sum.MeanSpeed, sum.StdDevSpeed, sum.MaxSpeed)
		fmt.Fprintf(w, "  mean cycle=%.0f us\n", sum.MeanDurationUS)

		states := make([]string, 0, len(sum.States))
		for st := range sum.States {
			states = append(states, string(st))
		}
		sort.Strings(states)
		for _, st := range states {
			fmt.Fprintf(w, "  %-5s %d\n", st, sum.States[vehicle.ManeuverState(st)])
		}
	}
}
