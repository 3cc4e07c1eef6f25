package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/itohio/spectrodo/pkg/absorbance"
	"github.com/itohio/spectrodo/pkg/capture"
	"github.com/itohio/spectrodo/pkg/config"
	"github.com/itohio/spectrodo/pkg/rank"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

var (
	// ErrNoBlank rejects a sample capture before any blank was stored.
	ErrNoBlank = errors.New("no blank captured yet")
	// ErrCaptureInvalid means every averaged channel was effectively zero.
	ErrCaptureInvalid = errors.New("capture invalid: all channels near zero")
)

// Device is the part of the sensor a session drives.
type Device interface {
	Measure(ctx context.Context, withBulb bool) (spectrum.Vector, error)
	SetBulb(ctx context.Context, on bool) error
}

// State of the blank/sample state machine.
type State int

const (
	NoBlank State = iota
	HasBlank
)

func (s State) String() string {
	switch s {
	case NoBlank:
		return "NoBlank"
	case HasBlank:
		return "HasBlank"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	State      State
	Blank      spectrum.Vector // Zero unless State is HasBlank
	Sample     spectrum.Vector
	Absorbance spectrum.Vector
	Details    [spectrum.NumChannels]absorbance.Result
	Top        []rank.Entry // Empty until the first sample
	Bulb       bool
	BlankAt    time.Time
	SampleAt   time.Time
}

// HasBlank reports whether a blank is stored.
func (s Snapshot) HasBlank() bool {
	return s.State == HasBlank
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for timestamps and the default settle wait.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithWait replaces the settle wait.
func WithWait(w capture.WaitFunc) Option {
	return func(s *Session) { s.wait = w }
}

// Session owns the sensor and the blank, sample and absorbance vectors.
// Commands are serialized; each one runs to completion.
type Session struct {
	dev      Device
	averager *capture.Averager
	withBulb bool
	topN     int
	clock    clock.Clock
	wait     capture.WaitFunc

	cmdMu sync.Mutex // One command at a time

	mu       sync.RWMutex
	state    State
	blank    spectrum.Vector
	sample   spectrum.Vector
	abs      spectrum.Vector
	details  [spectrum.NumChannels]absorbance.Result
	top      []rank.Entry
	bulb     bool
	blankAt  time.Time
	sampleAt time.Time

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex
}

// New creates a session in the NoBlank state. The bulb flag starts from
// cfg.Sensor.Bulb, which Setup has already applied to the device.
func New(dev Device, cfg *config.Config, opts ...Option) *Session {
	s := &Session{
		dev:      dev,
		withBulb: cfg.Capture.WithBulb,
		topN:     cfg.Capture.TopN,
		clock:    clock.New(),
		state:    NoBlank,
		bulb:     cfg.Sensor.Bulb,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.wait == nil {
		s.wait = s.clock.Sleep
	}
	if s.topN <= 0 {
		s.topN = rank.DefaultTopN
	}
	s.averager = capture.NewAverager(cfg.Capture.Samples, cfg.Capture.SettleDelay, cfg.Capture.ValidThreshold, s.wait)
	return s
}

func (s *Session) read(ctx context.Context) (spectrum.Vector, error) {
	return s.dev.Measure(ctx, s.withBulb)
}

func (s *Session) capture(ctx context.Context) (capture.Result, error) {
	res, err := s.averager.Capture(ctx, s.read)
	if err != nil {
		return res, err
	}
	res.CapturedAt = s.clock.Now()
	if !res.Valid {
		return res, ErrCaptureInvalid
	}
	return res, nil
}

// CaptureBlank averages a reference reading through clear water.
// A failed or invalid capture leaves the state and the previous blank untouched.
func (s *Session) CaptureBlank(ctx context.Context) (Snapshot, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	res, err := s.capture(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("blank capture failed")
		return s.Snapshot(), fmt.Errorf("blank: %w", err)
	}

	s.mu.Lock()
	s.blank = res.Vector
	s.blankAt = res.CapturedAt
	s.state = HasBlank
	s.mu.Unlock()

	log.Info().Int("channels", res.NonZero).Int("reads", res.Reads).Msg("blank stored")
	return s.notify(), nil
}

// CaptureSample averages a sample reading and computes its absorbance against
// the stored blank. Without a blank no measurement is taken.
func (s *Session) CaptureSample(ctx context.Context) (Snapshot, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.RLock()
	state, blank := s.state, s.blank
	s.mu.RUnlock()
	if state != HasBlank {
		return s.Snapshot(), ErrNoBlank
	}

	res, err := s.capture(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("sample capture failed")
		return s.Snapshot(), fmt.Errorf("sample: %w", err)
	}

	details := absorbance.Evaluate(res.Vector, blank)
	abs := absorbance.Compute(res.Vector, blank)
	top := rank.Top(abs, s.topN)

	s.mu.Lock()
	s.sample = res.Vector
	s.sampleAt = res.CapturedAt
	s.abs = abs
	s.details = details
	s.top = top
	s.mu.Unlock()

	log.Info().
		Int("undefined", absorbance.CountUndefined(details)).
		Str("best", top[0].Label).
		Float64("absorbance", top[0].Value).
		Msg("sample stored")
	return s.notify(), nil
}

// ToggleBulb flips the bulb flag and switches the bulb accordingly.
// If the device refuses, the flag keeps its previous value.
func (s *Session) ToggleBulb(ctx context.Context) (bool, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.RLock()
	on := !s.bulb
	s.mu.RUnlock()

	if err := s.dev.SetBulb(ctx, on); err != nil {
		return !on, fmt.Errorf("failed to switch bulb: %w", err)
	}

	s.mu.Lock()
	s.bulb = on
	s.mu.Unlock()

	log.Debug().Bool("on", on).Msg("bulb toggled")
	s.notify()
	return on, nil
}

// Snapshot returns a copy of the current state. It never touches the device.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		State:      s.state,
		Blank:      s.blank,
		Sample:     s.sample,
		Absorbance: s.abs,
		Details:    s.details,
		Top:        append([]rank.Entry(nil), s.top...),
		Bulb:       s.bulb,
		BlankAt:    s.blankAt,
		SampleAt:   s.sampleAt,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnUpdate registers a callback invoked with a snapshot after every change.
func (s *Session) OnUpdate(callback func(Snapshot)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// notify invokes the callbacks without holding the state lock.
func (s *Session) notify() Snapshot {
	snap := s.Snapshot()

	s.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(snap)
	}
	return snap
}
