// Package report exports absorbance results as chart images.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/itohio/spectrodo/pkg/rank"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

var (
	barColor = color.RGBA{R: 90, G: 140, B: 200, A: 255}
	topColor = color.RGBA{R: 220, G: 80, B: 60, A: 255}
)

const (
	chartWidth  = 8 * vg.Inch
	chartHeight = 4 * vg.Inch
	barWidth    = vg.Length(14)
)

// SaveAbsorbanceChart renders a per-channel absorbance bar chart. The top
// channels are drawn in a second color. The image format follows the
// extension of path (png, svg, pdf, ...).
func SaveAbsorbanceChart(path string, abs spectrum.Vector, top []rank.Entry) error {
	p := plot.New()
	p.Title.Text = "Absorbance (-log10(sample/blank))"
	p.X.Label.Text = "Channel"
	p.Y.Label.Text = "Absorbance"

	all := make(plotter.Values, spectrum.NumChannels)
	highlight := make(plotter.Values, spectrum.NumChannels)
	for i, v := range abs {
		all[i] = v
	}
	for _, e := range top {
		if e.Index >= 0 && e.Index < spectrum.NumChannels {
			highlight[e.Index] = e.Value
			all[e.Index] = 0
		}
	}

	bars, err := plotter.NewBarChart(all, barWidth)
	if err != nil {
		return fmt.Errorf("failed to build absorbance bars: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0

	best, err := plotter.NewBarChart(highlight, barWidth)
	if err != nil {
		return fmt.Errorf("failed to build top channel bars: %w", err)
	}
	best.Color = topColor
	best.LineStyle.Width = 0

	p.Add(bars, best, plotter.NewGrid())
	p.Legend.Add("channel", bars)
	p.Legend.Add(fmt.Sprintf("top %d", len(top)), best)
	p.Legend.Top = true

	labels := make([]string, spectrum.NumChannels)
	for i := range labels {
		labels[i] = fmt.Sprintf("%s\n%d", spectrum.Label(i), spectrum.Wavelengths[i])
	}
	p.NominalX(labels...)

	if err := p.Save(chartWidth, chartHeight, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}

// FileName returns the chart file name for a sample captured at t, with
// millisecond resolution so consecutive samples do not share a file.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, "absorbance-"+t.Format("20060102-150405.000")+".png")
}

// Export writes the absorbance chart for a sample captured at t into dir,
// creating dir if needed, and returns the file path.
func Export(dir string, t time.Time, abs spectrum.Vector, top []rank.Entry) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create chart directory: %w", err)
	}
	path := FileName(dir, t)
	if err := SaveAbsorbanceChart(path, abs, top); err != nil {
		return "", err
	}
	return path, nil
}
