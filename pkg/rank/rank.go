// Package rank orders spectral channels by absorbance.
package rank

import (
	"sort"

	"github.com/itohio/spectrodo/pkg/spectrum"
)

// DefaultTopN is the number of channels reported as most sensitive.
const DefaultTopN = 5

// Entry is a channel and its absorbance.
type Entry struct {
	Index int
	Label string
	Value float64
}

// Descending returns all channels ordered by value, highest first.
// Channels with equal values keep their original order (lower index first).
func Descending(abs spectrum.Vector) []Entry {
	entries := make([]Entry, spectrum.NumChannels)
	for i, v := range abs {
		entries[i] = Entry{Index: i, Label: spectrum.Label(i), Value: v}
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Value > entries[b].Value
	})

	return entries
}

// TopN returns the first n entries of ranked. n is clamped to [0, len(ranked)].
func TopN(ranked []Entry, n int) []Entry {
	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]Entry, n)
	copy(out, ranked[:n])
	return out
}

// Top ranks abs and returns the n most absorbing channels.
func Top(abs spectrum.Vector, n int) []Entry {
	return TopN(Descending(abs), n)
}
