package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"

	"github.com/itohio/spectrodo/pkg/spectrum"
)

const (
	// DefaultSamples is the number of reads averaged per capture.
	DefaultSamples = 5
	// DefaultSettle is the pause after each read.
	DefaultSettle = 50 * time.Millisecond
)

// ReadFunc produces one raw reading of all channels.
type ReadFunc func(ctx context.Context) (spectrum.Vector, error)

// WaitFunc blocks for the given duration.
type WaitFunc func(time.Duration)

// Result is an averaged capture.
type Result struct {
	Vector     spectrum.Vector
	Valid      bool      // At least one channel above the threshold
	NonZero    int       // Number of channels above the threshold
	Reads      int       // Number of reads averaged
	CapturedAt time.Time // Set by the caller, zero if unknown
}

// Averager averages a number of consecutive reads into one Result.
type Averager struct {
	Samples   int
	Settle    time.Duration
	Threshold float64
	Wait      WaitFunc
}

// NewAverager creates an averager. Non-positive samples fall back to one read,
// a non-positive threshold falls back to spectrum.ValidThreshold and a nil wait
// falls back to time.Sleep.
func NewAverager(samples int, settle time.Duration, threshold float64, wait WaitFunc) *Averager {
	if samples <= 0 {
		samples = 1
	}
	if threshold <= 0 {
		threshold = spectrum.ValidThreshold
	}
	if wait == nil {
		wait = time.Sleep
	}
	return &Averager{
		Samples:   samples,
		Settle:    settle,
		Threshold: threshold,
		Wait:      wait,
	}
}

// Averaged runs a single capture with the default threshold.
func Averaged(ctx context.Context, read ReadFunc, numSamples int, settle time.Duration, wait WaitFunc) (Result, error) {
	return NewAverager(numSamples, settle, spectrum.ValidThreshold, wait).Capture(ctx, read)
}

// Capture reads Samples vectors, sanitizes each channel, and averages them.
// The settle wait follows every read, the last one included. Once started a
// capture is not interrupted between reads; ctx only reaches the reader.
// A reader error aborts the capture.
func (a *Averager) Capture(ctx context.Context, read ReadFunc) (Result, error) {
	n := a.Samples
	if n <= 0 {
		n = 1
	}
	wait := a.Wait
	if wait == nil {
		wait = time.Sleep
	}
	threshold := a.Threshold
	if threshold <= 0 {
		threshold = spectrum.ValidThreshold
	}

	var acc spectrum.Vector
	for i := 0; i < n; i++ {
		raw, err := read(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("read %d/%d: %w", i+1, n, err)
		}

		clean := raw.Sanitized()
		floats.Add(acc[:], clean[:])

		wait(a.Settle)
	}

	for i := range acc {
		acc[i] /= float64(n)
	}

	nonZero := acc.CountAbove(threshold)
	res := Result{
		Vector:  acc,
		Valid:   nonZero > 0,
		NonZero: nonZero,
		Reads:   n,
	}

	log.Debug().
		Int("reads", n).
		Int("non_zero", nonZero).
		Bool("valid", res.Valid).
		Msg("capture averaged")

	return res, nil
}
