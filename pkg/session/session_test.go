package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/spectrodo/pkg/config"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

// fakeDevice returns the current reading for every Measure call.
type fakeDevice struct {
	mu       sync.Mutex
	reading  spectrum.Vector
	err      error
	bulbErr  error
	measures int
	bulbs    []bool
	withBulb []bool
}

func (d *fakeDevice) Measure(ctx context.Context, withBulb bool) (spectrum.Vector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.measures++
	d.withBulb = append(d.withBulb, withBulb)
	return d.reading, d.err
}

func (d *fakeDevice) SetBulb(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bulbErr != nil {
		return d.bulbErr
	}
	d.bulbs = append(d.bulbs, on)
	return nil
}

func (d *fakeDevice) set(v spectrum.Vector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reading = v
}

func (d *fakeDevice) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.measures
}

func filled(x float64) spectrum.Vector {
	var v spectrum.Vector
	for i := range v {
		v[i] = x
	}
	return v
}

func newTestSession(t *testing.T, dev Device) (*Session, *[]time.Duration, *clock.Mock) {
	t.Helper()

	var waits []time.Duration
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	s := New(dev, config.Default(),
		WithClock(clk),
		WithWait(func(d time.Duration) { waits = append(waits, d) }),
	)
	return s, &waits, clk
}

func TestSession_StateMachineScenario(t *testing.T) {
	dev := &fakeDevice{}
	s, waits, clk := newTestSession(t, dev)
	ctx := context.Background()

	assert.Equal(t, NoBlank, s.State())

	// Sample before blank is rejected without a measurement.
	snap, err := s.CaptureSample(ctx)
	assert.ErrorIs(t, err, ErrNoBlank)
	assert.Equal(t, 0, dev.calls())
	assert.Equal(t, spectrum.Vector{}, snap.Sample)
	assert.Equal(t, spectrum.Vector{}, snap.Absorbance)

	// Valid blank.
	dev.set(filled(100))
	snap, err = s.CaptureBlank(ctx)
	require.NoError(t, err)
	assert.Equal(t, HasBlank, snap.State)
	assert.Equal(t, filled(100), snap.Blank)
	assert.Equal(t, clk.Now(), snap.BlankAt)
	assert.Equal(t, 5, dev.calls())
	assert.Len(t, *waits, 5)

	// Degenerate blank keeps the first one.
	dev.set(spectrum.Vector{})
	snap, err = s.CaptureBlank(ctx)
	assert.ErrorIs(t, err, ErrCaptureInvalid)
	assert.Equal(t, HasBlank, snap.State)
	assert.Equal(t, filled(100), snap.Blank)

	// Valid sample.
	sample := filled(10)
	sample[3] = 1
	sample[9] = 0
	dev.set(sample)
	snap, err = s.CaptureSample(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, snap.Sample)

	for i := range snap.Absorbance {
		switch i {
		case 3:
			assert.InDelta(t, 2.0, snap.Absorbance[i], 1e-12)
		case 9:
			assert.Equal(t, 0.0, snap.Absorbance[i])
			assert.False(t, snap.Details[i].Defined)
		default:
			assert.InDelta(t, 1.0, snap.Absorbance[i], 1e-12)
		}
	}

	require.Len(t, snap.Top, 5)
	assert.Equal(t, "D", snap.Top[0].Label)
	assert.Equal(t, []int{3, 0, 1, 2, 4}, []int{snap.Top[0].Index, snap.Top[1].Index, snap.Top[2].Index, snap.Top[3].Index, snap.Top[4].Index})
}

func TestSession_InvalidSampleKeepsPrevious(t *testing.T) {
	dev := &fakeDevice{}
	s, _, _ := newTestSession(t, dev)
	ctx := context.Background()

	dev.set(filled(100))
	_, err := s.CaptureBlank(ctx)
	require.NoError(t, err)

	dev.set(filled(10))
	first, err := s.CaptureSample(ctx)
	require.NoError(t, err)

	dev.set(spectrum.Vector{})
	snap, err := s.CaptureSample(ctx)
	assert.ErrorIs(t, err, ErrCaptureInvalid)
	assert.Equal(t, first.Sample, snap.Sample)
	assert.Equal(t, first.Absorbance, snap.Absorbance)
	assert.Equal(t, first.Top, snap.Top)
}

func TestSession_ReaderErrorLeavesStateUntouched(t *testing.T) {
	boom := errors.New("bus fault")
	dev := &fakeDevice{err: boom}
	s, _, _ := newTestSession(t, dev)

	_, err := s.CaptureBlank(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, NoBlank, s.State())
}

func TestSession_SanitizedBlank(t *testing.T) {
	dev := &fakeDevice{}
	s, _, _ := newTestSession(t, dev)

	v := filled(2)
	v[0] = math.NaN()
	v[1] = math.Inf(1)
	v[2] = -4
	dev.set(v)

	snap, err := s.CaptureBlank(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Blank[0])
	assert.Equal(t, 0.0, snap.Blank[1])
	assert.Equal(t, 0.0, snap.Blank[2])
	assert.Equal(t, 2.0, snap.Blank[3])
}

func TestSession_SnapshotNeverMeasures(t *testing.T) {
	dev := &fakeDevice{reading: filled(5)}
	s, _, _ := newTestSession(t, dev)

	_, err := s.CaptureBlank(context.Background())
	require.NoError(t, err)
	calls := dev.calls()

	before := s.Snapshot()
	for i := 0; i < 3; i++ {
		assert.Equal(t, before, s.Snapshot())
	}
	assert.Equal(t, calls, dev.calls())
}

func TestSession_ToggleBulb(t *testing.T) {
	dev := &fakeDevice{}
	s, _, _ := newTestSession(t, dev)
	require.True(t, s.Snapshot().Bulb, "default config starts with the bulb on")

	on, err := s.ToggleBulb(context.Background())
	require.NoError(t, err)
	assert.False(t, on)

	on, err = s.ToggleBulb(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []bool{false, true}, dev.bulbs)

	dev.bulbErr = errors.New("nack")
	on, err = s.ToggleBulb(context.Background())
	assert.Error(t, err)
	assert.True(t, on, "flag reverted on failure")
	assert.True(t, s.Snapshot().Bulb)
	assert.Equal(t, 0, dev.calls(), "bulb toggling does not capture")
}

func TestSession_MeasuresWithBulbPerConfig(t *testing.T) {
	dev := &fakeDevice{reading: filled(1)}
	cfg := config.Default()
	cfg.Capture.WithBulb = false
	cfg.Capture.Samples = 2

	s := New(dev, cfg, WithWait(func(time.Duration) {}))
	_, err := s.CaptureBlank(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, dev.withBulb)
}

func TestSession_OnUpdate(t *testing.T) {
	dev := &fakeDevice{reading: filled(50)}
	s, _, _ := newTestSession(t, dev)

	var got []Snapshot
	s.OnUpdate(func(snap Snapshot) { got = append(got, snap) })

	_, err := s.CaptureSample(context.Background())
	assert.ErrorIs(t, err, ErrNoBlank)
	assert.Empty(t, got, "rejected commands do not notify")

	_, err = s.CaptureBlank(context.Background())
	require.NoError(t, err)
	_, err = s.CaptureSample(context.Background())
	require.NoError(t, err)
	_, err = s.ToggleBulb(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.True(t, got[0].HasBlank())
	assert.Len(t, got[1].Top, 5)
	assert.False(t, got[2].Bulb)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "NoBlank", NoBlank.String())
	assert.Equal(t, "HasBlank", HasBlank.String())
	assert.Equal(t, "State(7)", State(7).String())
}
