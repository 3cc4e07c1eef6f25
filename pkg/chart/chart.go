// Package chart provides a Fyne widget showing blank, sample and absorbance spectra.
package chart

import (
	"image/color"
	"math"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/spectrodo/pkg/rank"
	"github.com/itohio/spectrodo/pkg/session"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

// SpectrumWidget draws the blank and sample readings as paired bars in the
// upper pane and the absorbance trace with the top channels marked in the
// lower pane.
type SpectrumWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu         sync.RWMutex
	hasBlank   bool
	hasSample  bool
	blank      spectrum.Vector
	sample     spectrum.Vector
	absorbance spectrum.Vector
	top        []rank.Entry

	// Auto-scaling
	readingMax     float64
	absMin, absMax float64
}

// New creates a new SpectrumWidget instance.
func New() *SpectrumWidget {
	s := &SpectrumWidget{}
	s.updateAutoScale()
	s.ExtendBaseWidget(s)
	return s
}

// UpdateData updates the widget from a session snapshot.
// Call it on the Fyne goroutine (fyne.Do from session callbacks).
func (s *SpectrumWidget) UpdateData(snap session.Snapshot) {
	s.mu.Lock()
	s.hasBlank = snap.HasBlank()
	s.hasSample = !snap.SampleAt.IsZero()
	s.blank = snap.Blank
	s.sample = snap.Sample
	s.absorbance = snap.Absorbance
	s.top = append(s.top[:0], snap.Top...)
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// updateAutoScale calculates both Y ranges from current data.
func (s *SpectrumWidget) updateAutoScale() {
	_, s.readingMax = valueRange(s.blank[:], s.sample[:])
	if s.readingMax <= 0 {
		s.readingMax = 1
	}
	s.readingMax *= 1.1

	s.absMin, s.absMax = valueRange(s.absorbance[:])
	if s.absMin > 0 {
		s.absMin = 0
	}
	if s.absMax < 0 {
		s.absMax = 0
	}
	span := s.absMax - s.absMin
	if span == 0 {
		span = 1
		s.absMax = s.absMin + 1
	}
	margin := span * 0.1
	s.absMax += margin
	if s.absMin < 0 {
		s.absMin -= margin
	}
}

// valueRange returns the min and max over all finite values, 0 and 0 when there are none.
func valueRange(series ...[]float64) (lo, hi float64) {
	first := true
	for _, values := range series {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if first {
				lo, hi = v, v
				first = false
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// CreateRenderer creates the widget renderer.
func (s *SpectrumWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &spectrumRenderer{
		chart:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
