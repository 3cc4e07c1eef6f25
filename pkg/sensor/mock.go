package sensor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/itohio/spectrodo/pkg/config"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

// Mock simulates an AS7265x looking through a cuvette for testing and development.
// The first ClearReads measurements see clear water, every later one sees the dye.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.Mutex
	rnd       *rand.Rand
	connected bool
	bulb      bool
	settings  Settings
	reads     int

	lamp spectrum.Vector
	dye  spectrum.Vector
}

// NewMock creates a new mocked sensor instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}

	m := &Mock{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(cfg.Seed)),
	}
	m.lamp, m.dye = mockSpectra(cfg)
	return m
}

// mockSpectra builds a broad lamp emission curve and a dye absorbance band.
func mockSpectra(cfg *config.MockConfig) (lamp, dye spectrum.Vector) {
	peak := 560.0
	if cfg.PeakChannel >= 0 && cfg.PeakChannel < spectrum.NumChannels {
		peak = float64(spectrum.Wavelengths[cfg.PeakChannel])
	}

	for i, wl := range spectrum.Wavelengths {
		x := float64(wl)
		lamp[i] = cfg.Lamp * (0.3 + 0.7*math.Exp(-math.Pow((x-620)/220, 2)))

		if i < len(cfg.Absorbance) {
			dye[i] = cfg.Absorbance[i]
		} else {
			dye[i] = cfg.PeakA * math.Exp(-math.Pow((x-peak)/60, 2))
		}
	}
	return lamp, dye
}

// Connect simulates connecting to the sensor.
func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.cfg.Missing {
		return fmt.Errorf("%w: mock configured as missing", ErrNotDetected)
	}
	m.connected = true
	return nil
}

// Close stops the mocked sensor.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the sensor is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Configure records the settings.
func (m *Mock) Configure(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.settings = s
	return nil
}

// SetBulb sets the simulated bulb state.
func (m *Mock) SetBulb(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.bulb = on
	return nil
}

// Bulb returns the simulated bulb state.
func (m *Mock) Bulb() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bulb
}

// Settings returns the last applied settings.
func (m *Mock) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Reads returns the number of measurements taken so far.
func (m *Mock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Measure generates one simulated reading.
func (m *Mock) Measure(ctx context.Context, withBulb bool) (spectrum.Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v spectrum.Vector
	if !m.connected {
		return v, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return v, err
	}

	dyed := m.reads >= m.cfg.ClearReads
	m.reads++

	lit := withBulb || m.bulb
	for i := range v {
		v[i] = m.cfg.Ambient
		if !lit {
			continue
		}
		level := m.lamp[i]
		if dyed {
			level *= math.Pow(10, -m.dye[i])
		}
		noise := 1 + m.cfg.NoiseLevel*(2*m.rnd.Float64()-1)
		v[i] += level * noise
	}
	return v, nil
}
