package monitor

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/highway.planner/internal/security"
)

// ErrNoPoints is returned when a plot is requested for an empty run.
var ErrNoPoints = errors.New("no cycles to plot")

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// RunPlotter renders PNG plots of a stored run.
type RunPlotter struct {
	source CycleSource
}

// NewRunPlotter returns a plotter reading cycles from source.
func NewRunPlotter(source CycleSource) *RunPlotter {
	return &RunPlotter{source: source}
}

// PlotRun writes speed, lane and cost PNGs for runID into outputDir and
// returns the file paths.
func (rp *RunPlotter) PlotRun(ctx context.Context, runID, outputDir string) ([]string, error) {
	cycles, err := rp.source.Cycles(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	return WritePlots(PointsFromCycles(cycles), outputDir)
}

// WriteSpeedPNG renders the speed plot of runID to w.
func (rp *RunPlotter) WriteSpeedPNG(ctx context.Context, runID string, w io.Writer) error {
	cycles, err := rp.source.Cycles(ctx, runID, 0)
	if err != nil {
		return err
	}
	p, err := speedPlot(PointsFromCycles(cycles))
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// WritePlots saves speed.png, lane.png and cost.png under outputDir.
func WritePlots(points []Point, outputDir string) ([]string, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	builders := []struct {
		name  string
		build func([]Point) (*plot.Plot, error)
	}{
		{"speed.png", speedPlot},
		{"lane.png", lanePlot},
		{"cost.png", costPlot},
	}
	var files []string
	for _, b := range builders {
		p, err := b.build(points)
		if err != nil {
			return files, fmt.Errorf("%s: %w", b.name, err)
		}
		path := filepath.Join(outputDir, b.name)
		if err := p.Save(plotWidth, plotHeight, path); err != nil {
			return files, fmt.Errorf("save %s: %w", b.name, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func speedPlot(points []Point) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	p := plot.New()
	p.Title.Text = "Speed"
	p.X.Label.Text = "Cycle"
	p.Y.Label.Text = "Speed (m/s)"

	speed := make(plotter.XYs, len(points))
	target := make(plotter.XYs, len(points))
	for i, pt := range points {
		speed[i] = plotter.XY{X: float64(pt.Cycle), Y: pt.Speed}
		target[i] = plotter.XY{X: float64(pt.Cycle), Y: pt.TargetSpeed}
	}

	colors := generateColors(2)
	speedLine, err := plotter.NewLine(speed)
	if err != nil {
		return nil, err
	}
	speedLine.Color = colors[0]
	speedLine.Width = vg.Points(1.5)

	targetLine, err := plotter.NewLine(target)
	if err != nil {
		return nil, err
	}
	targetLine.Color = colors[1]
	targetLine.Width = vg.Points(1)
	targetLine.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	p.Add(speedLine, targetLine)
	p.Legend.Add("speed", speedLine)
	p.Legend.Add("target", targetLine)
	placeLegend(p)
	return p, nil
}

func lanePlot(points []Point) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	p := plot.New()
	p.Title.Text = "Committed lane"
	p.X.Label.Text = "Cycle"
	p.Y.Label.Text = "Lane"

	xys := make(plotter.XYs, len(points))
	maxLane := 0
	for i, pt := range points {
		xys[i] = plotter.XY{X: float64(pt.Cycle), Y: float64(pt.Lane)}
		if pt.Lane > maxLane {
			maxLane = pt.Lane
		}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.StepStyle = plotter.PostStep
	line.Color = generateColors(1)[0]
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Y.Min = -0.5
	p.Y.Max = float64(maxLane) + 0.5
	return p, nil
}

func costPlot(points []Point) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	p := plot.New()
	p.Title.Text = "Chosen state cost"
	p.X.Label.Text = "Cycle"
	p.Y.Label.Text = "Total cost"

	xys := make(plotter.XYs, len(points))
	positive := true
	for i, pt := range points {
		xys[i] = plotter.XY{X: float64(pt.Cycle), Y: pt.Cost}
		if pt.Cost <= 0 {
			positive = false
		}
	}
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 200, G: 60, B: 40, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)

	// Costs span many decades.
	if positive {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: 1}
	}
	return p, nil
}

func placeLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// generateColors creates a palette of n distinct colors.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue+0.55, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range). Hue wraps.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	for h >= 1 {
		h--
	}
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// MakePlotOutputDir returns baseDir/<source>/<timestamp>, with source
// reduced to a sanitized base name without extension.
func MakePlotOutputDir(baseDir, source string, now time.Time) string {
	ts := now.Format("20060102_150405")
	if source == "" {
		return filepath.Join(baseDir, "run_"+ts)
	}
	base := filepath.Base(source)
	name := security.SanitizeName(base[:len(base)-len(filepath.Ext(base))])
	return filepath.Join(baseDir, name, ts)
}
