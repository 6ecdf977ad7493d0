package campaign

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ScorePlot renders the RE history above the log10 BME history as a PNG
func ScorePlot(path string, bme, re []float64) error {
	if len(bme) != len(re) {
		return fmt.Errorf("score histories differ in length: %d BME, %d RE", len(bme), len(re))
	}
	if len(re) == 0 {
		return fmt.Errorf("no scores to plot")
	}

	reXY := make(plotter.XYs, len(re))
	bmeXY := make(plotter.XYs, 0, len(bme))
	for i := range re {
		reXY[i] = plotter.XY{X: float64(i + 1), Y: re[i]}
		// degenerate iterations have BME = 0 and no finite logarithm
		if bme[i] > 0 {
			bmeXY = append(bmeXY, plotter.XY{X: float64(i + 1), Y: math.Log10(bme[i])})
		}
	}

	rePlot, err := scorePanel("Relative entropy", "RE", reXY)
	if err != nil {
		return err
	}
	bmePlot, err := scorePanel("Bayesian model evidence", "log10 BME", bmeXY)
	if err != nil {
		return err
	}

	img := vgimg.New(7*vg.Inch, 7*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      5 * vg.Millimeter,
		PadTop:    2 * vg.Millimeter,
		PadBottom: 2 * vg.Millimeter,
		PadLeft:   2 * vg.Millimeter,
		PadRight:  4 * vg.Millimeter,
	}
	plots := [][]*plot.Plot{{rePlot}, {bmePlot}}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func scorePanel(title, ylabel string, xys plotter.XYs) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	if len(xys) == 0 {
		return p, nil
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", title, err)
	}
	line.Width = vg.Points(1.2)
	points.Radius = vg.Points(2.5)
	p.Add(line, points)
	return p, nil
}
