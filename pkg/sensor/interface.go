package sensor

import (
	"context"
	"errors"

	"github.com/itohio/spectrodo/pkg/as7265x"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

// ErrNotDetected means the spectral sensor did not answer during bring-up.
// It is fatal: the hardware must be reconnected and the program restarted.
var ErrNotDetected = errors.New("AS7265x not detected")

// ErrNotConnected is returned by operations on a sensor that is not connected.
var ErrNotConnected = errors.New("not connected")

// Settings is the sensor configuration applied at bring-up.
type Settings struct {
	IntegrationCycles uint8
	Gain              as7265x.Gain
	Mode              as7265x.Mode
	Indicator         bool
}

// Sensor defines the interface for AS7265x sensors (serial bridge, direct I2C or mocked).
type Sensor interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	Configure(ctx context.Context, s Settings) error
	SetBulb(ctx context.Context, on bool) error
	Measure(ctx context.Context, withBulb bool) (spectrum.Vector, error)
}

// Ensure Serial implements Sensor.
var _ Sensor = (*Serial)(nil)

// Ensure I2C implements Sensor.
var _ Sensor = (*I2C)(nil)

// Ensure Mock implements Sensor.
var _ Sensor = (*Mock)(nil)
