package spectrum

import "math"

const (
	// NumChannels is the number of calibrated channels across the AS7265x triad.
	NumChannels = 18
	// ValidThreshold is the level an averaged channel must exceed for a capture
	// to count as carrying signal.
	ValidThreshold = 0.0001
)

// Vector is one value per spectral channel, index-aligned to Labels.
type Vector [NumChannels]float64

// Labels are the channel names in vector order.
var Labels = [NumChannels]string{
	"A", "B", "C", "D", "E", "F", "G", "H", "I",
	"J", "K", "L", "M", "N", "O", "P", "Q", "R",
}

// Wavelengths holds the nominal center wavelength (nm) of the hardware
// channel each index is read from. Indexes 0-5 come from the UV device,
// 6-11 from the visible device and 12-17 from the NIR device.
var Wavelengths = [NumChannels]int{
	410, 435, 460, 485, 510, 535,
	560, 585, 645, 705, 900, 940,
	610, 680, 730, 760, 810, 860,
}

// Label returns the label for channel i, or "?" when i is out of range.
func Label(i int) string {
	if i < 0 || i >= NumChannels {
		return "?"
	}
	return Labels[i]
}

// Sanitize maps non-finite and negative readings to zero.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Sanitized returns a copy of v with every channel passed through Sanitize.
func (v Vector) Sanitized() Vector {
	var out Vector
	for i, x := range v {
		out[i] = Sanitize(x)
	}
	return out
}

// CountAbove returns how many channels are strictly greater than threshold.
func (v Vector) CountAbove(threshold float64) int {
	n := 0
	for _, x := range v {
		if x > threshold {
			n++
		}
	}
	return n
}

// Slice returns the vector as a freshly allocated slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, NumChannels)
	copy(out, v[:])
	return out
}

// FromSlice builds a Vector from the first NumChannels values of s.
// Missing values are left at zero.
func FromSlice(s []float64) Vector {
	var v Vector
	copy(v[:], s)
	return v
}
