// Command planner serves the highway behaviour planner to the simulator and
// exposes its decisions over HTTP and gRPC.
//
//	planner [flags]
//	planner migrate <action> [-db path]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/highway.planner/internal/api"
	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/feed"
	"github.com/banshee-data/highway.planner/internal/httputil"
	"github.com/banshee-data/highway.planner/internal/monitor"
	"github.com/banshee-data/highway.planner/internal/monitoring"
	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/telemetry"
	"github.com/banshee-data/highway.planner/internal/units"
	"github.com/banshee-data/highway.planner/internal/version"
)

const defaultDBFile = "planner.db"

var (
	listen      = flag.String("listen", ":8080", "Admin HTTP listen address")
	simListen   = flag.String("sim-listen", telemetry.DefaultListenAddr, "Simulator websocket listen address")
	grpcListen  = flag.String("grpc-listen", feed.DefaultConfig().ListenAddr, "Decision feed gRPC listen address (empty to disable)")
	configFile  = flag.String("config", config.DefaultConfigPath, "Path to the tuning JSON file (empty for built-in defaults)")
	dbFile      = flag.String("db", defaultDBFile, "Path to the SQLite decision log (empty to disable recording)")
	unitsFlag   = flag.String("units", "mps", "Speed units for the admin API ("+units.GetValidUnitsString()+")")
	historySize = flag.Int("history", monitor.DefaultHistorySize, "Number of recent decisions kept in memory")
	logOps      = flag.String("log-ops", "-", "Ops log destination: file path, - for stderr, empty to disable")
	logDiag     = flag.String("log-diag", "-", "Diag log destination: file path, - for stderr, empty to disable")
	logTrace    = flag.String("log-trace", "", "Per-cycle trace log destination: file path, - for stderr, empty to disable")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	flag.Parse()

	if *showVersion {
		fmt.Println("planner", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q, expected one of %s", *unitsFlag, units.GetValidUnitsString())
	}

	closeLogs, err := configureLogging(*logOps, *logDiag, *logTrace)
	if err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}
	defer closeLogs()

	log.Printf("planner %s", version.String())

	tuning, err := loadTuning(*configFile)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	newPlanner := plannerFactory(tuning)
	if _, err := newPlanner(); err != nil {
		log.Fatalf("invalid planner configuration: %v", err)
	}

	var database *db.DB
	if *dbFile != "" {
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
	}

	history := monitor.NewHistory(*historySize)
	var publisher *feed.Publisher
	if *grpcListen != "" {
		cfg := feed.DefaultConfig()
		cfg.ListenAddr = *grpcListen
		publisher = feed.NewPublisher(cfg)
	}
	sink, recorder := buildSink(database, history, publisher)

	simCfg := telemetry.ServerConfig{
		NewPlanner: newPlanner,
		Sink:       sink,
	}
	if database != nil {
		simCfg.StartRun = func(ctx context.Context) (string, error) {
			return database.StartRun(ctx, "simulator", tuning)
		}
	}
	simServer, err := telemetry.NewServer(simCfg)
	if err != nil {
		log.Fatalf("failed to create simulator server: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Simulator websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := simServer.ListenAndServe(ctx, *simListen); err != nil {
			log.Printf("simulator server error: %v", err)
			stop()
		}
		log.Print("simulator routine terminated")
	}()

	// Decision feed
	if publisher != nil {
		if err := publisher.Start(); err != nil {
			log.Fatalf("failed to start decision feed: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			publisher.Stop()
			log.Print("decision feed routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux, err := buildAdminMux(adminDeps{
			database:  database,
			tuning:    tuning,
			history:   history,
			units:     *unitsFlag,
			sim:       simServer,
			recorder:  recorder,
			publisher: publisher,
		})
		if err != nil {
			log.Printf("failed to build admin routes: %v", err)
			stop()
			return
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if recorder != nil {
		written, failed := recorder.Stats()
		log.Printf("recorded %d decisions (%d failed)", written, failed)
	}
	log.Printf("Graceful shutdown complete")
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to the SQLite decision log")
	fs.Usage = func() { db.PrintMigrateHelp(os.Stderr) }

	// Accept the action before or after -db.
	var action []string
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		action, args = args[:1], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := db.RunMigrateCommand(append(action, fs.Args()...), *dbPath, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

// loadTuning reads path, or returns the built-in defaults when path is empty.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func plannerFactory(tuning *config.TuningConfig) telemetry.PlannerFactory {
	cfg := planner.ConfigFromTuning(tuning)
	return func() (*planner.Planner, error) {
		return planner.New(cfg)
	}
}

// buildSink fans decisions out to every enabled consumer. The recorder is
// returned so its counters can be reported.
func buildSink(database *db.DB, history *monitor.History, publisher *feed.Publisher) (planner.DecisionSink, *db.Recorder) {
	var sinks planner.MultiSink
	var recorder *db.Recorder
	if database != nil {
		recorder = db.NewRecorder(database)
		sinks = append(sinks, recorder)
	}
	if history != nil {
		sinks = append(sinks, history)
	}
	if publisher != nil {
		sinks = append(sinks, publisher)
	}
	return sinks, recorder
}

type adminDeps struct {
	database  *db.DB
	tuning    *config.TuningConfig
	history   *monitor.History
	units     string
	sim       *telemetry.Server
	recorder  *db.Recorder
	publisher *feed.Publisher
}

type serviceStats struct {
	Build     version.Info          `json:"build"`
	Simulator telemetry.ServerStats `json:"simulator"`
	Recorded  uint64                `json:"recorded"`
	Failed    uint64                `json:"record_failures"`
	Feed      *feed.Stats           `json:"feed,omitempty"`
	History   int                   `json:"history"`
}

func buildAdminMux(deps adminDeps) (*http.ServeMux, error) {
	// Nil pointers must not become non-nil interfaces.
	var latest api.LatestSource
	if deps.history != nil {
		latest = deps.history
	}
	mux := http.NewServeMux()
	api.NewServer(deps.database, deps.tuning, latest, deps.units).Register(mux)

	var runs monitor.CycleSource
	if deps.database != nil {
		runs = deps.database
		if err := deps.database.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("attach db admin routes: %w", err)
		}
	}
	monitor.NewChartHandler(deps.history, runs).Register(mux)

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		s := serviceStats{Build: version.Get()}
		if deps.sim != nil {
			s.Simulator = deps.sim.Stats()
		}
		if deps.recorder != nil {
			s.Recorded, s.Failed = deps.recorder.Stats()
		}
		if deps.publisher != nil {
			fs := deps.publisher.Stats()
			s.Feed = &fs
		}
		if deps.history != nil {
			s.History = deps.history.Len()
		}
		httputil.WriteJSONOK(w, s)
	})
	return mux, nil
}

// configureLogging points every package's log streams at the flag
// destinations and returns a function closing any opened files.
func configureLogging(ops, diag, trace string) (func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	writers := make([]io.Writer, 3)
	for i, dest := range []string{ops, diag, trace} {
		w, c, err := openLogWriter(dest)
		if err != nil {
			closeAll()
			return nil, err
		}
		if c != nil {
			closers = append(closers, c)
		}
		writers[i] = w
	}

	for _, set := range []func(ops, diag, trace io.Writer){
		monitoring.SetLogWriters,
		planner.SetLogWriters,
		telemetry.SetLogWriters,
		db.SetLogWriters,
		feed.SetLogWriters,
	} {
		set(writers[0], writers[1], writers[2])
	}
	return closeAll, nil
}

// openLogWriter resolves a log destination flag. Empty disables the stream
// and "-" is stderr; anything else is appended to as a file.
func openLogWriter(dest string) (io.Writer, io.Closer, error) {
	switch dest {
	case "":
		return nil, nil, nil
	case "-":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(filepath.Clean(dest), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", dest, err)
	}
	return f, f, nil
}
