package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/httputil"
	"github.com/banshee-data/highway.planner/internal/monitoring"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ChartHandler serves go-echarts pages of planner decisions:
//
//	/charts/live                 the in-memory history
//	/charts/runs/{id}            a stored run (?limit= caps the cycles, default 2000)
//	/charts/runs/{id}/speed.png  gonum/plot rendering of a stored run's speed
type ChartHandler struct {
	history *History
	runs    CycleSource
}

// NewChartHandler returns a handler over history and runs. Either may be nil.
func NewChartHandler(history *History, runs CycleSource) *ChartHandler {
	return &ChartHandler{history: history, runs: runs}
}

// Register adds the chart routes to mux.
func (c *ChartHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /charts/live", c.handleLive)
	mux.HandleFunc("GET /charts/runs/{id}", c.handleRun)
	mux.HandleFunc("GET /charts/runs/{id}/speed.png", c.handleSpeedPNG)
}

func (c *ChartHandler) handleLive(w http.ResponseWriter, r *http.Request) {
	if c.history == nil {
		httputil.NotFound(w, "no live decision history")
		return
	}
	points := PointsFromDecisions(c.history.Snapshot())
	c.render(w, "Live planner", fmt.Sprintf("%d of %d decisions", len(points), c.history.Total()), points)
}

func (c *ChartHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if c.runs == nil {
		httputil.NotFound(w, "decision recording is disabled")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 2000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	id := r.PathValue("id")
	cycles, err := c.runs.Cycles(r.Context(), id, limit)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load run: %v", err))
		return
	}
	c.render(w, "Run "+id, fmt.Sprintf("%d cycles", len(cycles)), PointsFromCycles(cycles))
}

func (c *ChartHandler) handleSpeedPNG(w http.ResponseWriter, r *http.Request) {
	if c.runs == nil {
		httputil.NotFound(w, "decision recording is disabled")
		return
	}
	var buf bytes.Buffer
	err := NewRunPlotter(c.runs).WriteSpeedPNG(r.Context(), r.PathValue("id"), &buf)
	switch {
	case errors.Is(err, db.ErrRunNotFound), errors.Is(err, ErrNoPoints):
		httputil.NotFound(w, err.Error())
		return
	case err != nil:
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (c *ChartHandler) render(w http.ResponseWriter, title, subtitle string, points []Point) {
	var buf bytes.Buffer
	if err := RenderCharts(&buf, title, subtitle, points); err != nil {
		monitoring.Opsf("[monitor] chart render failed: %v", err)
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// RenderCharts writes an HTML page with speed, lane and chosen-cost charts.
func RenderCharts(out io.Writer, title, subtitle string, points []Point) error {
	x := make([]string, len(points))
	speed := make([]opts.LineData, len(points))
	target := make([]opts.LineData, len(points))
	lane := make([]opts.LineData, len(points))
	costs := make([]opts.BarData, len(points))
	for i, p := range points {
		x[i] = strconv.Itoa(p.Cycle)
		speed[i] = opts.LineData{Value: p.Speed}
		target[i] = opts.LineData{Value: p.TargetSpeed}
		lane[i] = opts.LineData{Value: p.Lane}
		costs[i] = opts.BarData{Name: p.State, Value: p.Cost}
	}

	speedChart := charts.NewLine()
	speedChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Speed (m/s)"}),
	)
	speedChart.SetXAxis(x).
		AddSeries("speed", speed).
		AddSeries("target", target)

	laneChart := charts.NewLine()
	laneChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "240px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Lane"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Lane", Min: 0}),
	)
	laneChart.SetXAxis(x).AddSeries("lane", lane)

	costChart := charts.NewBar()
	costChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Chosen state cost"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cycle"}),
	)
	costChart.SetXAxis(x).AddSeries("cost", costs)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.SetPageTitle(title)
	page.AddCharts(speedChart, laneChart, costChart)
	return page.Render(out)
}
