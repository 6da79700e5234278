// Package main renders PNG plots of a recorded planner run, read either
// from the SQLite decision log or from a running planner's admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/highway.planner/internal/api"
	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/httputil"
	"github.com/banshee-data/highway.planner/internal/monitor"
	"github.com/banshee-data/highway.planner/internal/security"
)

// Config holds configuration for plotting.
type Config struct {
	DBPath    string
	APIURL    string
	RunID     string
	OutputDir string
	Latest    bool
}

// runLister resolves -latest against either source.
type runLister interface {
	monitor.CycleSource
	Runs(ctx context.Context) ([]db.Run, error)
}

func main() {
	cfg := parseFlags()

	if err := validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	var source runLister
	label := cfg.DBPath
	if cfg.APIURL != "" {
		source = api.NewClient(cfg.APIURL, httputil.NewStandardClient(nil))
		label = "api"
	} else {
		database, err := db.OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		source = database
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	files, err := plotRun(ctx, source, cfg, label, time.Now(), os.Stdout)
	if err != nil {
		log.Fatalf("Plot failed: %v", err)
	}
	log.Printf("wrote %d plots", len(files))
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.DBPath, "db", "planner.db", "SQLite decision log to read")
	flag.StringVar(&cfg.APIURL, "api", "", "Read from a running planner's admin API instead (e.g. http://localhost:8080)")
	flag.StringVar(&cfg.RunID, "run", "", "Run ID to plot")
	flag.BoolVar(&cfg.Latest, "latest", false, "Plot the most recent run")
	flag.StringVar(&cfg.OutputDir, "out", "plots", "Base output directory")

	flag.Parse()

	return cfg
}

func validate(cfg Config) error {
	if cfg.RunID == "" && !cfg.Latest {
		return errors.New("either -run or -latest is required")
	}
	if cfg.RunID != "" && cfg.Latest {
		return errors.New("-run and -latest are mutually exclusive")
	}
	if cfg.DBPath == "" && cfg.APIURL == "" {
		return errors.New("one of -db or -api is required")
	}
	return nil
}

func plotRun(ctx context.Context, source runLister, cfg Config, label string, now time.Time, out io.Writer) ([]string, error) {
	runID := cfg.RunID
	if cfg.Latest {
		runs, err := source.Runs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			return nil, errors.New("no runs recorded")
		}
		runID = runs[0].ID
	}

	dir := monitor.MakePlotOutputDir(cfg.OutputDir, label, now)
	if err := security.ValidateOutputPath(dir); err != nil {
		return nil, err
	}
	files, err := monitor.NewRunPlotter(source).PlotRun(ctx, runID, dir)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	for _, f := range files {
		fmt.Fprintln(out, f)
	}
	return files, nil
}
