package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/spectrodo/pkg/spectrum"
)

func indexes(entries []Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Index
	}
	return out
}

func TestTop_DistinctValues(t *testing.T) {
	var abs spectrum.Vector
	for i := range abs {
		abs[i] = float64(i) * 0.01
	}
	abs[3] = 0.9
	abs[11] = 0.8
	abs[0] = 0.7

	top := Top(abs, 5)
	require.Len(t, top, 5)
	assert.Equal(t, []int{3, 11, 0, 17, 16}, indexes(top))
	assert.Equal(t, "D", top[0].Label)
	assert.Equal(t, 0.9, top[0].Value)

	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Value, top[i].Value)
	}
}

func TestDescending_TiesKeepLowerIndexFirst(t *testing.T) {
	var abs spectrum.Vector
	abs[2] = 0.5
	abs[7] = 0.5
	abs[12] = 0.5
	abs[4] = 0.3
	abs[1] = 0.3

	ranked := Descending(abs)
	require.Len(t, ranked, spectrum.NumChannels)
	assert.Equal(t, []int{2, 7, 12, 1, 4}, indexes(ranked[:5]))
}

func TestDescending_AllZero(t *testing.T) {
	var abs spectrum.Vector

	top := Top(abs, DefaultTopN)
	require.Len(t, top, DefaultTopN)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, indexes(top))
	for _, e := range top {
		assert.Equal(t, 0.0, e.Value)
	}
}

func TestDescending_NegativeValuesLast(t *testing.T) {
	var abs spectrum.Vector
	for i := range abs {
		abs[i] = -float64(i)
	}
	abs[17] = 1

	ranked := Descending(abs)
	assert.Equal(t, 17, ranked[0].Index)
	assert.Equal(t, 0, ranked[1].Index)
	assert.Equal(t, 16, ranked[17].Index)
}

func TestTopN_Clamps(t *testing.T) {
	ranked := Descending(spectrum.Vector{})
	assert.Len(t, TopN(ranked, -1), 0)
	assert.Len(t, TopN(ranked, 100), spectrum.NumChannels)
}

func TestTopN_ReturnsCopy(t *testing.T) {
	ranked := Descending(spectrum.Vector{})
	top := TopN(ranked, 2)
	top[0].Value = 42
	assert.Equal(t, 0.0, ranked[0].Value)
}
