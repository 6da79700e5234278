package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// Run is one planner session: a simulator connection or a replayed capture.
type Run struct {
	ID        string          `json:"run_id"`
	Label     string          `json:"label,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Config    json.RawMessage `json:"config"`
	Cycles    int             `json:"cycles"`
}

// CycleRecord is the stored form of a planner.Decision.
type CycleRecord struct {
	RunID       string                `json:"run_id"`
	Cycle       int                   `json:"cycle"`
	Previous    vehicle.ManeuverState `json:"previous"`
	State       vehicle.ManeuverState `json:"state"`
	Fallback    bool                  `json:"fallback,omitempty"`
	Lane        int                   `json:"lane"`
	S           float64               `json:"s"`
	D           float64               `json:"d"`
	ProjectedS  float64               `json:"projected_s"`
	Speed       float64               `json:"speed"`
	Accel       float64               `json:"accel"`
	TargetSpeed float64               `json:"target_speed"`
	TotalCost   float64               `json:"total_cost"`
	Vehicles    int                   `json:"vehicles"`
	DurationUS  int64                 `json:"duration_us"`
	RecordedAt  time.Time             `json:"recorded_at"`
}

// CandidateRecord is one evaluated successor state. Cost columns hold the
// weighted contributions.
type CandidateRecord struct {
	State        vehicle.ManeuverState `json:"state"`
	Feasible     bool                  `json:"feasible"`
	Lane         int                   `json:"lane"`
	Speed        float64               `json:"speed"`
	Accel        float64               `json:"accel"`
	TotalCost    float64               `json:"total_cost"`
	Collision    float64               `json:"collision"`
	Buffer       float64               `json:"buffer"`
	Efficiency   float64               `json:"efficiency"`
	Goal         float64               `json:"goal"`
	Acceleration float64               `json:"acceleration"`
	Jerk         float64               `json:"jerk"`
}

// RunSummary aggregates the cycles of one run.
type RunSummary struct {
	RunID          string                        `json:"run_id"`
	Cycles         int                           `json:"cycles"`
	MeanSpeed      float64                       `json:"mean_speed"`
	StdDevSpeed    float64                       `json:"stddev_speed"`
	MaxSpeed       float64                       `json:"max_speed"`
	LaneChanges    int                           `json:"lane_changes"`
	Fallbacks      int                           `json:"fallbacks"`
	MeanDurationUS float64                       `json:"mean_duration_us"`
	States         map[vehicle.ManeuverState]int `json:"states"`
	FinalS         float64                       `json:"final_s"`
}

// StartRun inserts a new run and returns its id. cfg is stored as JSON so a
// run can be reproduced later; nil stores an empty object.
func (db *DB) StartRun(ctx context.Context, label string, cfg *config.TuningConfig) (string, error) {
	cfgJSON := []byte("{}")
	if cfg != nil {
		var err error
		if cfgJSON, err = json.Marshal(cfg); err != nil {
			return "", fmt.Errorf("failed to encode run config: %w", err)
		}
	}

	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_unix_nano, config_json, label) VALUES (?, ?, ?, ?)`,
		id, db.clock.Now().UnixNano(), string(cfgJSON), label,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	diagf("run %s started (%s)", id, label)
	return id, nil
}

// RecordDecision stores one decision and its candidates in a single
// transaction. The decision's RunID must refer to an existing run.
func (db *DB) RecordDecision(ctx context.Context, d planner.Decision) error {
	if d.RunID == "" {
		return errors.New("decision has no run id")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles (
			run_id, cycle, previous_state, state, fallback, lane, s, d, projected_s,
			speed, accel, target_speed, total_cost, vehicles, duration_us, recorded_unix_nano
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Cycle, string(d.Previous), string(d.State), d.Fallback, d.Lane, d.S, d.D, d.ProjectedS,
		d.Speed, d.Accel, d.TargetSpeed, d.Total, d.Vehicles, d.Duration.Microseconds(), db.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %d: %w", d.Cycle, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (
			run_id, cycle, state, feasible, lane, speed, accel, total_cost,
			collision, buffer, efficiency, goal, acceleration, jerk
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range d.Candidates {
		w := c.Evaluation.Weighted
		if _, err := stmt.ExecContext(ctx,
			d.RunID, d.Cycle, string(c.State), c.Feasible, c.Lane, c.Speed, c.Accel, c.Evaluation.Total,
			w.Collision, w.Buffer, w.Efficiency, w.Goal, w.Acceleration, w.Jerk,
		); err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.State, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle %d: %w", d.Cycle, err)
	}
	return nil
}

// Runs lists runs newest first with their cycle counts.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.run_id, r.label, r.started_unix_nano, r.config_json, COUNT(c.cycle)
		FROM runs r
		LEFT JOIN cycles c ON c.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_unix_nano DESC, r.run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started int64
			cfg     string
		)
		if err := rows.Scan(&r.ID, &r.Label, &started, &cfg, &r.Cycles); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.Config = json.RawMessage(cfg)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns a single run.
func (db *DB) Run(ctx context.Context, runID string) (Run, error) {
	var (
		r       Run
		started int64
		cfg     string
	)
	err := db.QueryRowContext(ctx, `
		SELECT r.run_id, r.label, r.started_unix_nano, r.config_json,
			(SELECT COUNT(*) FROM cycles c WHERE c.run_id = r.run_id)
		FROM runs r WHERE r.run_id = ?`, runID,
	).Scan(&r.ID, &r.Label, &started, &cfg, &r.Cycles)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.Config = json.RawMessage(cfg)
	return r, nil
}

// Cycles returns the stored cycles of a run in cycle order. A positive limit
// keeps only the most recent limit cycles.
func (db *DB) Cycles(ctx context.Context, runID string, limit int) ([]CycleRecord, error) {
	if _, err := db.Run(ctx, runID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT run_id, cycle, previous_state, state, fallback, lane, s, d, projected_s,
				speed, accel, target_speed, total_cost, vehicles, duration_us, recorded_unix_nano
			FROM cycles WHERE run_id = ?
			ORDER BY cycle DESC LIMIT ?
		) ORDER BY cycle ASC`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			c              CycleRecord
			previous, st   string
			recordedUnixNs int64
		)
		if err := rows.Scan(
			&c.RunID, &c.Cycle, &previous, &st, &c.Fallback, &c.Lane, &c.S, &c.D, &c.ProjectedS,
			&c.Speed, &c.Accel, &c.TargetSpeed, &c.TotalCost, &c.Vehicles, &c.DurationUS, &recordedUnixNs,
		); err != nil {
			return nil, err
		}
		c.Previous = vehicle.ManeuverState(previous)
		c.State = vehicle.ManeuverState(st)
		c.RecordedAt = time.Unix(0, recordedUnixNs).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Candidates returns the evaluated successors of one cycle in insertion
// order.
func (db *DB) Candidates(ctx context.Context, runID string, cycle int) ([]CandidateRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT state, feasible, lane, speed, accel, total_cost,
			collision, buffer, efficiency, goal, acceleration, jerk
		FROM candidates WHERE run_id = ? AND cycle = ?
		ORDER BY rowid`, runID, cycle)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []CandidateRecord
	for rows.Next() {
		var (
			c  CandidateRecord
			st string
		)
		if err := rows.Scan(&st, &c.Feasible, &c.Lane, &c.Speed, &c.Accel, &c.TotalCost,
			&c.Collision, &c.Buffer, &c.Efficiency, &c.Goal, &c.Acceleration, &c.Jerk); err != nil {
			return nil, err
		}
		c.State = vehicle.ManeuverState(st)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RunSummary computes speed statistics, lane changes and the state histogram
// of a run.
func (db *DB) RunSummary(ctx context.Context, runID string) (RunSummary, error) {
	cycles, err := db.Cycles(ctx, runID, 0)
	if err != nil {
		return RunSummary{}, err
	}
	return Summarize(runID, cycles), nil
}

// Summarize aggregates cycles that are already in memory.
func Summarize(runID string, cycles []CycleRecord) RunSummary {
	sum := RunSummary{
		RunID:  runID,
		Cycles: len(cycles),
		States: make(map[vehicle.ManeuverState]int),
	}
	if len(cycles) == 0 {
		return sum
	}

	speeds := make([]float64, len(cycles))
	durations := make([]float64, len(cycles))
	for i, c := range cycles {
		speeds[i] = c.Speed
		durations[i] = float64(c.DurationUS)
		sum.States[c.State]++
		if c.Fallback {
			sum.Fallbacks++
		}
		if i > 0 && c.Lane != cycles[i-1].Lane {
			sum.LaneChanges++
		}
	}
	if len(speeds) > 1 {
		sum.MeanSpeed, sum.StdDevSpeed = stat.MeanStdDev(speeds, nil)
	} else {
		sum.MeanSpeed = speeds[0]
	}
	sum.MaxSpeed = floats.Max(speeds)
	sum.MeanDurationUS = stat.Mean(durations, nil)
	sum.FinalS = cycles[len(cycles)-1].ProjectedS
	return sum
}
