// Package console implements the single-character command interface.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/itohio/spectrodo/pkg/report"
	"github.com/itohio/spectrodo/pkg/session"
)

// Commands.
const (
	CmdBlank   = 'b'
	CmdSample  = 's'
	CmdBulb    = 'w'
	CmdReprint = 'r'
)

// DefaultHeartbeat is the halt loop period.
const DefaultHeartbeat = 500 * time.Millisecond

// Session is what the console drives.
type Session interface {
	CaptureBlank(ctx context.Context) (session.Snapshot, error)
	CaptureSample(ctx context.Context) (session.Snapshot, error)
	ToggleBulb(ctx context.Context) (bool, error)
	Snapshot() session.Snapshot
}

var _ Session = (*session.Session)(nil)

// Console dispatches commands to a session and writes text output.
type Console struct {
	out      io.Writer
	sess     Session
	chartDir string
}

// Option configures a Console.
type Option func(*Console)

// WithChartDir enables chart export after every successful sample.
func WithChartDir(dir string) Option {
	return func(c *Console) { c.chartDir = dir }
}

// New creates a console writing to out.
func New(out io.Writer, sess Session, opts ...Option) *Console {
	c := &Console{out: out, sess: sess}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Banner prints the title and the command help.
func (c *Console) Banner() {
	fmt.Fprintln(c.out, "\n=== AS7265x DO Colorimetry ===")
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  b  -> capture BLANK (reference) with bulb")
	fmt.Fprintln(c.out, "  s  -> capture SAMPLE + compute absorbance")
	fmt.Fprintln(c.out, "  w  -> toggle bulb ON/OFF (for debugging)")
	fmt.Fprintln(c.out, "  r  -> reprint last results")
	fmt.Fprintln(c.out)
}

// Ready prints the bring-up confirmation.
func (c *Console) Ready() {
	fmt.Fprintln(c.out, "[OK] AS7265x ready.")
	fmt.Fprintln(c.out, "Place CLEAR water, type 'b' + Enter to store BLANK.")
}

// Dispatch runs the command for one input byte. Letters are case-insensitive,
// anything else is ignored. It returns false for ignored bytes.
func (c *Console) Dispatch(ctx context.Context, b byte) bool {
	switch lower(b) {
	case CmdBlank:
		c.blank(ctx)
	case CmdSample:
		c.sample(ctx)
	case CmdBulb:
		c.bulb(ctx)
	case CmdReprint:
		c.reprint()
	default:
		return false
	}
	return true
}

// Run reads commands from in until EOF or ctx is done. Each command runs to
// completion before the next byte is read.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	r := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read command: %w", err)
		}
		c.Dispatch(ctx, b)
	}
}

func (c *Console) blank(ctx context.Context) {
	fmt.Fprintln(c.out, "\n[BLANK] Capturing reference...")
	snap, err := c.sess.CaptureBlank(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("blank command failed")
		fmt.Fprintln(c.out, "[ERR] Failed to read BLANK.")
		return
	}
	PrintVector(c.out, "BLANK (avg, calibrated)", snap.Blank, VectorDecimals)
}

func (c *Console) sample(ctx context.Context) {
	if !c.sess.Snapshot().HasBlank() {
		fmt.Fprintln(c.out, "[WARN] No BLANK yet. Type 'b' first.")
		return
	}

	fmt.Fprintln(c.out, "\n[SAMPLE] Capturing sample...")
	snap, err := c.sess.CaptureSample(ctx)
	switch {
	case errors.Is(err, session.ErrNoBlank):
		fmt.Fprintln(c.out, "[WARN] No BLANK yet. Type 'b' first.")
		return
	case err != nil:
		log.Debug().Err(err).Msg("sample command failed")
		fmt.Fprintln(c.out, "[ERR] Failed to read SAMPLE.")
		return
	}

	PrintVector(c.out, "SAMPLE (avg, calibrated)", snap.Sample, VectorDecimals)
	PrintVector(c.out, "ABSORBANCE (-log10(sample/blank))", snap.Absorbance, AbsorbanceDecimals)
	PrintRanking(c.out, snap.Top)
	fmt.Fprintln(c.out, "Tip: Pick top 1-3 channels for DO calibration vs. lab values.")

	if c.chartDir == "" {
		return
	}
	path, err := report.Export(c.chartDir, snap.SampleAt, snap.Absorbance, snap.Top)
	if err != nil {
		log.Error().Err(err).Msg("chart export failed")
		fmt.Fprintln(c.out, "[ERR] Failed to save chart.")
		return
	}
	fmt.Fprintf(c.out, "[CHART] %s\n", path)
}

func (c *Console) bulb(ctx context.Context) {
	on, err := c.sess.ToggleBulb(ctx)
	if err != nil {
		log.Error().Err(err).Msg("bulb command failed")
		fmt.Fprintln(c.out, "[ERR] Failed to switch bulb.")
		return
	}
	if on {
		fmt.Fprintln(c.out, "[BULB] ON")
	} else {
		fmt.Fprintln(c.out, "[BULB] OFF")
	}
}

func (c *Console) reprint() {
	snap := c.sess.Snapshot()
	if snap.HasBlank() {
		PrintVector(c.out, "BLANK (last)", snap.Blank, VectorDecimals)
	} else {
		fmt.Fprintln(c.out, "No BLANK stored yet.")
	}
	PrintVector(c.out, "SAMPLE (last)", snap.Sample, VectorDecimals)
	PrintVector(c.out, "ABSORBANCE (last)", snap.Absorbance, AbsorbanceDecimals)
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// Halt reports a missing sensor and prints a heartbeat dot every period until
// ctx is done. There is no way back: the hardware has to be reconnected and
// the program restarted.
func Halt(ctx context.Context, w io.Writer, clk clock.Clock, period time.Duration) error {
	if clk == nil {
		clk = clock.New()
	}
	if period <= 0 {
		period = DefaultHeartbeat
	}

	fmt.Fprintln(w, "[ERR] AS7265x not detected. Check Qwiic cable/power (3.3V) and I2C wires.")

	ticker := clk.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprint(w, ".")
		}
	}
}
