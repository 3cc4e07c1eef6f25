package chart

import (
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/spectrodo/pkg/rank"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

var (
	gridColor   = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	textColor   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	blankColor  = color.RGBA{R: 160, G: 160, B: 160, A: 255} // Gray
	sampleColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	absColor    = color.RGBA{R: 100, G: 200, B: 255, A: 255} // Light blue
	topColor    = color.RGBA{R: 230, G: 70, B: 60, A: 255}   // Red
)

const (
	marginLeft   = float32(60)
	marginRight  = float32(20)
	marginTop    = float32(20)
	marginBottom = float32(30)
	paneGap      = float32(30)
	numHLines    = 4
)

// spectrumRenderer renders the spectrum widget.
type spectrumRenderer struct {
	chart *SpectrumWidget

	bg *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// pane is a plotting rectangle with its value range.
type pane struct {
	x, y, w, h float32
	lo, hi     float64
}

func (p pane) valueY(v float64) float32 {
	if p.hi == p.lo {
		return p.y + p.h
	}
	return p.y + p.h - float32((v-p.lo)/(p.hi-p.lo))*p.h
}

func (p pane) slotX(i int) float32 {
	slot := p.w / spectrum.NumChannels
	return p.x + slot*float32(i) + slot/2
}

// MinSize returns the minimum size of the widget.
func (r *spectrumRenderer) MinSize() fyne.Size {
	return fyne.NewSize(480, 360)
}

// Layout arranges the widget components.
func (r *spectrumRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.chart.BaseWidget.Refresh()
	}
}

// Refresh rebuilds all canvas objects from the current data.
func (r *spectrumRenderer) Refresh() {
	c := r.chart
	c.mu.RLock()
	hasBlank, hasSample := c.hasBlank, c.hasSample
	blank, sample, abs := c.blank, c.sample, c.absorbance
	top := append([]rank.Entry(nil), c.top...)
	readingMax, absMin, absMax := c.readingMax, c.absMin, c.absMax
	c.mu.RUnlock()

	r.objects = []fyne.CanvasObject{r.bg}

	size := c.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	plotW := size.Width - marginLeft - marginRight
	paneH := (size.Height - marginTop - marginBottom - paneGap) / 2
	if plotW <= 0 || paneH <= 0 {
		return
	}

	readings := pane{x: marginLeft, y: marginTop, w: plotW, h: paneH, lo: 0, hi: readingMax}
	absPane := pane{x: marginLeft, y: marginTop + paneH + paneGap, w: plotW, h: paneH, lo: absMin, hi: absMax}

	r.drawGrid(readings, 1)
	r.drawGrid(absPane, 3)
	r.drawLabels(absPane)

	if hasBlank {
		r.drawBars(readings, blank, -1, blankColor)
	}
	if hasSample {
		r.drawBars(readings, sample, 1, sampleColor)
		r.drawAbsorbance(absPane, abs)
		r.drawTop(absPane, abs, top)
	}

	r.drawLegend(readings)
}

// drawGrid draws horizontal grid lines with value labels.
func (r *spectrumRenderer) drawGrid(p pane, decimals int) {
	for i := 0; i <= numHLines; i++ {
		y := p.y + float32(i)*p.h/numHLines
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(p.x, y)
		line.Position2 = fyne.NewPos(p.x+p.w, y)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		value := p.hi - float64(i)*(p.hi-p.lo)/numHLines
		text := canvas.NewText(strconv.FormatFloat(value, 'f', decimals, 64), textColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	if p.lo < 0 && p.hi > 0 {
		zero := canvas.NewLine(textColor)
		zero.Position1 = fyne.NewPos(p.x, p.valueY(0))
		zero.Position2 = fyne.NewPos(p.x+p.w, p.valueY(0))
		zero.StrokeWidth = 1
		r.objects = append(r.objects, zero)
	}
}

// drawLabels draws the channel labels under the absorbance pane.
func (r *spectrumRenderer) drawLabels(p pane) {
	for i := 0; i < spectrum.NumChannels; i++ {
		text := canvas.NewText(spectrum.Label(i), textColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(p.slotX(i)-4, p.y+p.h+5))
		r.objects = append(r.objects, text)
	}
}

// drawBars draws one bar per channel, offset to the left (-1) or right (+1) half of the slot.
func (r *spectrumRenderer) drawBars(p pane, v spectrum.Vector, side float32, col color.Color) {
	slot := p.w / spectrum.NumChannels
	barW := slot * 0.35
	for i, x := range v {
		top := p.valueY(x)
		bar := canvas.NewRectangle(col)
		left := p.slotX(i) - barW/2 + side*barW/2
		bar.Move(fyne.NewPos(left, top))
		bar.Resize(fyne.NewSize(barW, p.y+p.h-top))
		r.objects = append(r.objects, bar)
	}
}

// drawAbsorbance draws the absorbance trace.
func (r *spectrumRenderer) drawAbsorbance(p pane, abs spectrum.Vector) {
	for i := 0; i < spectrum.NumChannels-1; i++ {
		line := canvas.NewLine(absColor)
		line.Position1 = fyne.NewPos(p.slotX(i), p.valueY(abs[i]))
		line.Position2 = fyne.NewPos(p.slotX(i+1), p.valueY(abs[i+1]))
		line.StrokeWidth = 2.5
		r.objects = append(r.objects, line)
	}
}

// drawTop marks the most absorbing channels with a dot and their rank.
func (r *spectrumRenderer) drawTop(p pane, abs spectrum.Vector, top []rank.Entry) {
	for n, e := range top {
		if e.Index < 0 || e.Index >= spectrum.NumChannels {
			continue
		}
		x, y := p.slotX(e.Index), p.valueY(abs[e.Index])

		dot := canvas.NewCircle(topColor)
		dot.Move(fyne.NewPos(x-4, y-4))
		dot.Resize(fyne.NewSize(8, 8))
		r.objects = append(r.objects, dot)

		text := canvas.NewText(strconv.Itoa(n+1), topColor)
		text.TextSize = 11
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-4, y-20))
		r.objects = append(r.objects, text)
	}
}

// drawLegend labels the reading series.
func (r *spectrumRenderer) drawLegend(p pane) {
	items := []struct {
		name string
		col  color.Color
	}{
		{"blank", blankColor},
		{"sample", sampleColor},
		{"absorbance", absColor},
	}
	x := p.x + 10
	for _, it := range items {
		text := canvas.NewText(it.name, it.col)
		text.TextSize = 11
		text.Move(fyne.NewPos(x, p.y+4))
		r.objects = append(r.objects, text)
		x += 80
	}
}

// Objects returns all canvas objects for rendering.
func (r *spectrumRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *spectrumRenderer) Destroy() {
	// Cleanup handled by Fyne
}
