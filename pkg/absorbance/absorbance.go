// Package absorbance converts a sample/blank pair into per-channel absorbance.
//
// A channel whose sample or blank is non-finite or not positive has no
// defined absorbance. Evaluate keeps that distinction in Result, while
// Compute reports such channels as 0. A reported 0 therefore means either
// "no attenuation" or "no usable signal"; callers that need to tell them
// apart must use Evaluate.
package absorbance

import (
	"math"

	"github.com/itohio/spectrodo/pkg/spectrum"
)

// Result is the absorbance of a single channel.
type Result struct {
	Value   float64
	Defined bool
}

// Computed wraps a defined absorbance value.
func Computed(v float64) Result {
	return Result{Value: v, Defined: true}
}

// Undefined is the result for channels without a usable signal.
func Undefined() Result {
	return Result{}
}

// Reported returns the value presented to users: the absorbance when defined, 0 otherwise.
func (r Result) Reported() float64 {
	if !r.Defined {
		return 0
	}
	return r.Value
}

// Channel computes -log10(sample/blank) for a single channel. The ratio is
// taken in log space so it cannot overflow or underflow for finite inputs.
func Channel(sample, blank float64) Result {
	if !usable(sample) || !usable(blank) {
		return Undefined()
	}
	return Computed(math.Log10(blank) - math.Log10(sample))
}

// Evaluate computes the tagged absorbance of every channel.
func Evaluate(sample, blank spectrum.Vector) [spectrum.NumChannels]Result {
	var out [spectrum.NumChannels]Result
	for i := range out {
		out[i] = Channel(sample[i], blank[i])
	}
	return out
}

// Compute returns the reported absorbance vector, undefined channels as 0.
func Compute(sample, blank spectrum.Vector) spectrum.Vector {
	var out spectrum.Vector
	for i, r := range Evaluate(sample, blank) {
		out[i] = r.Reported()
	}
	return out
}

// CountUndefined returns how many channels have no defined absorbance.
func CountUndefined(results [spectrum.NumChannels]Result) int {
	n := 0
	for _, r := range results {
		if !r.Defined {
			n++
		}
	}
	return n
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
