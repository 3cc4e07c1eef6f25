package console

import (
	"fmt"
	"io"
	"strconv"

	"github.com/itohio/spectrodo/pkg/rank"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

// Display precision.
const (
	VectorDecimals     = 3
	AbsorbanceDecimals = 4
)

// FormatValue renders v with a fixed number of decimals. Negative zero prints as zero.
func FormatValue(v float64, decimals int) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// PrintVector writes a titled block with one "  <label>: <value>" line per channel.
func PrintVector(w io.Writer, title string, v spectrum.Vector, decimals int) {
	fmt.Fprintln(w, title)
	for i, x := range v {
		fmt.Fprintf(w, "  %s: %s\n", spectrum.Label(i), FormatValue(x, decimals))
	}
}

// PrintRanking writes the most absorbing channels, highest first.
func PrintRanking(w io.Writer, top []rank.Entry) {
	fmt.Fprintln(w, "Top channels by absorbance (most sensitive):")
	for _, e := range top {
		fmt.Fprintf(w, "  %s : %s\n", e.Label, FormatValue(e.Value, AbsorbanceDecimals))
	}
}
