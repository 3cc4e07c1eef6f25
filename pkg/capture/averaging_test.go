package capture

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/spectrodo/pkg/spectrum"
)

// fakeReader returns the queued vectors in order and repeats the last one.
type fakeReader struct {
	vectors []spectrum.Vector
	calls   int
}

func (f *fakeReader) read(ctx context.Context) (spectrum.Vector, error) {
	idx := f.calls
	if idx >= len(f.vectors) {
		idx = len(f.vectors) - 1
	}
	f.calls++
	return f.vectors[idx], nil
}

type waitRecorder struct {
	waits []time.Duration
}

func (w *waitRecorder) wait(d time.Duration) {
	w.waits = append(w.waits, d)
}

func constant(v float64) spectrum.Vector {
	var out spectrum.Vector
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAveraged_SanitizesBadReadings(t *testing.T) {
	pattern := []float64{math.NaN(), math.Inf(-1), -5, 3}
	var raw spectrum.Vector
	for i := range raw {
		raw[i] = pattern[i%len(pattern)]
	}

	r := &fakeReader{vectors: []spectrum.Vector{raw}}
	w := &waitRecorder{}

	res, err := Averaged(context.Background(), r.read, 4, 10*time.Millisecond, w.wait)
	require.NoError(t, err)

	for i, v := range res.Vector {
		if i%len(pattern) == 3 {
			assert.Equal(t, 3.0, v, "channel %d", i)
		} else {
			assert.Equal(t, 0.0, v, "channel %d", i)
		}
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
	assert.True(t, res.Valid)
}

func TestAveraged_IdenticalReadingsAreUnchanged(t *testing.T) {
	var raw spectrum.Vector
	for i := range raw {
		raw[i] = float64(i+1) * 12.5
	}

	for _, k := range []int{1, 2, 5, 10} {
		r := &fakeReader{vectors: []spectrum.Vector{raw}}
		res, err := Averaged(context.Background(), r.read, k, 0, func(time.Duration) {})
		require.NoError(t, err)
		for i := range raw {
			assert.InDelta(t, raw[i], res.Vector[i], 1e-9, "k=%d channel %d", k, i)
		}
		assert.Equal(t, k, r.calls)
		assert.Equal(t, k, res.Reads)
	}
}

func TestAveraged_DividesBySampleCount(t *testing.T) {
	// Multiplying by 1/n instead of dividing by n misses each of these.
	tests := []struct {
		value float64
		n     int
	}{
		{1.0 / 3, 6},
		{1.0 / 3, 7},
		{0.7, 5},
		{12.34, 5},
	}

	for _, tt := range tests {
		r := &fakeReader{vectors: []spectrum.Vector{constant(tt.value)}}
		res, err := Averaged(context.Background(), r.read, tt.n, 0, func(time.Duration) {})
		require.NoError(t, err)
		for i, v := range res.Vector {
			assert.Equal(t, tt.value, v, "value=%v n=%d channel %d", tt.value, tt.n, i)
		}
	}
}

func TestAveraged_MeanOfDifferentReadings(t *testing.T) {
	r := &fakeReader{vectors: []spectrum.Vector{constant(1), constant(2), constant(3), constant(-100)}}

	res, err := Averaged(context.Background(), r.read, 4, 0, func(time.Duration) {})
	require.NoError(t, err)

	// -100 is sanitized to 0: (1+2+3+0)/4
	for _, v := range res.Vector {
		assert.InDelta(t, 1.5, v, 1e-12)
	}
}

func TestAveraged_Validity(t *testing.T) {
	t.Run("all at or below threshold is invalid", func(t *testing.T) {
		r := &fakeReader{vectors: []spectrum.Vector{constant(spectrum.ValidThreshold)}}
		res, err := Averaged(context.Background(), r.read, 3, 0, func(time.Duration) {})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, 0, res.NonZero)
	})

	t.Run("all zero is invalid", func(t *testing.T) {
		r := &fakeReader{vectors: []spectrum.Vector{{}}}
		res, err := Averaged(context.Background(), r.read, 3, 0, func(time.Duration) {})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("single channel at 1.0 is valid", func(t *testing.T) {
		var v spectrum.Vector
		v[9] = 1.0
		r := &fakeReader{vectors: []spectrum.Vector{v}}
		res, err := Averaged(context.Background(), r.read, 3, 0, func(time.Duration) {})
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, 1, res.NonZero)
	})
}

func TestAveraged_WaitsAfterEveryRead(t *testing.T) {
	r := &fakeReader{vectors: []spectrum.Vector{constant(1)}}
	w := &waitRecorder{}

	_, err := Averaged(context.Background(), r.read, 5, 50*time.Millisecond, w.wait)
	require.NoError(t, err)

	assert.Len(t, w.waits, 5)
	for _, d := range w.waits {
		assert.Equal(t, 50*time.Millisecond, d)
	}
}

func TestAveraged_NonPositiveSamples(t *testing.T) {
	r := &fakeReader{vectors: []spectrum.Vector{constant(2)}}

	res, err := Averaged(context.Background(), r.read, 0, 0, func(time.Duration) {})
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 2.0, res.Vector[0])
}

func TestAveraged_ReaderError(t *testing.T) {
	boom := errors.New("bus error")
	calls := 0
	read := func(ctx context.Context) (spectrum.Vector, error) {
		calls++
		if calls == 2 {
			return spectrum.Vector{}, boom
		}
		return constant(1), nil
	}

	_, err := Averaged(context.Background(), read, 5, 0, func(time.Duration) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestAverager_CustomThreshold(t *testing.T) {
	a := NewAverager(2, 0, 0.5, func(time.Duration) {})
	r := &fakeReader{vectors: []spectrum.Vector{constant(0.4)}}

	res, err := a.Capture(context.Background(), r.read)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestNewAverager_Defaults(t *testing.T) {
	a := NewAverager(0, DefaultSettle, 0, nil)
	assert.Equal(t, 1, a.Samples)
	assert.Equal(t, spectrum.ValidThreshold, a.Threshold)
	assert.NotNil(t, a.Wait)
}
