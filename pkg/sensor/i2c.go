package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/itohio/spectrodo/pkg/as7265x"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

// I2C is a sensor wired directly to a Linux I2C bus (Raspberry Pi and similar).
type I2C struct {
	busName string
	addr    uint16

	mu        sync.Mutex
	bus       i2c.BusCloser
	dev       *as7265x.Dev
	connected bool
	bulb      bool
}

// NewI2C creates a sensor on the named bus ("" selects the first bus).
func NewI2C(busName string, addr uint16) *I2C {
	if addr == 0 {
		addr = as7265x.DefaultAddress
	}
	return &I2C{busName: busName, addr: addr}
}

// Connect initializes the host drivers, opens the bus and runs the device presence check.
// A bus that cannot be reached counts as a sensor that is not detected.
func (s *I2C) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("%w: failed to initialize periph host: %v", ErrNotDetected, err)
	}

	bus, err := i2creg.Open(s.busName)
	if err != nil {
		return fmt.Errorf("%w: failed to open I2C bus %q: %v", ErrNotDetected, s.busName, err)
	}

	dev := as7265x.New(&i2c.Dev{Addr: s.addr, Bus: bus})
	if err := dev.Begin(); err != nil {
		closeErr := bus.Close()
		if errors.Is(err, as7265x.ErrNotDetected) {
			return multierr.Append(fmt.Errorf("%w on bus %q: %v", ErrNotDetected, s.busName, err), closeErr)
		}
		return multierr.Append(fmt.Errorf("failed to start sensor: %w", err), closeErr)
	}

	s.bus = bus
	s.dev = dev
	s.connected = true

	log.Info().Str("bus", bus.String()).Uint16("addr", s.addr).Msg("sensor connected over I2C")
	return nil
}

// Close switches the bulbs off and releases the bus.
func (s *I2C) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	var err error
	for _, b := range []byte{as7265x.BulbWhite, as7265x.BulbIR, as7265x.BulbUV} {
		err = multierr.Append(err, s.dev.DisableBulb(b))
	}
	err = multierr.Append(err, s.bus.Close())

	s.bus = nil
	s.dev = nil
	s.connected = false
	s.bulb = false
	return err
}

// IsConnected returns whether the sensor is currently connected.
func (s *I2C) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Configure applies integration time, gain, mode and indicator settings.
func (s *I2C) Configure(ctx context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dev.SetIntegrationCycles(settings.IntegrationCycles); err != nil {
		return err
	}
	if err := s.dev.SetGain(settings.Gain); err != nil {
		return err
	}
	if err := s.dev.SetMeasurementMode(settings.Mode); err != nil {
		return err
	}
	if settings.Indicator {
		return s.dev.EnableIndicator()
	}
	return s.dev.DisableIndicator()
}

// SetBulb turns the white bulb on or off.
func (s *I2C) SetBulb(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.setWhite(on); err != nil {
		return err
	}
	s.bulb = on
	return nil
}

func (s *I2C) setWhite(on bool) error {
	if on {
		return s.dev.EnableBulb(as7265x.BulbWhite)
	}
	return s.dev.DisableBulb(as7265x.BulbWhite)
}

// Measure runs one conversion and reads the calibrated values.
func (s *I2C) Measure(ctx context.Context, withBulb bool) (spectrum.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return spectrum.Vector{}, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return spectrum.Vector{}, err
	}

	measure := s.dev.TakeMeasurements
	if withBulb {
		measure = s.dev.TakeMeasurementsWithBulb
	}
	if err := measure(); err != nil {
		return spectrum.Vector{}, fmt.Errorf("measure: %w", err)
	}
	// The bulb-lit conversion leaves every bulb off.
	if withBulb && s.bulb {
		if err := s.setWhite(true); err != nil {
			return spectrum.Vector{}, fmt.Errorf("restore bulb: %w", err)
		}
	}
	return s.dev.Calibrated()
}
