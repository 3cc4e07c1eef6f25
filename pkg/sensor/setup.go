package sensor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/itohio/spectrodo/pkg/as7265x"
	"github.com/itohio/spectrodo/pkg/config"
)

// New creates the sensor selected by cfg.Sensor.Driver. The sensor is not connected.
func New(cfg *config.Config) (Sensor, error) {
	switch cfg.Sensor.Driver {
	case config.DriverSerial, "":
		return NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.Timeout), nil
	case config.DriverI2C:
		return NewI2C(cfg.Sensor.I2CBus, cfg.Sensor.I2CAddress), nil
	case config.DriverMock:
		return NewMock(&cfg.Mock), nil
	}
	return nil, fmt.Errorf("unknown sensor driver %q", cfg.Sensor.Driver)
}

// SettingsFrom converts the textual sensor configuration.
func SettingsFrom(cfg config.SensorConfig) (Settings, error) {
	gain, err := as7265x.ParseGain(cfg.Gain)
	if err != nil {
		return Settings{}, err
	}
	mode, err := as7265x.ParseMode(cfg.MeasurementMode)
	if err != nil {
		return Settings{}, err
	}
	cycles := cfg.IntegrationCycles
	if cycles == 0 {
		cycles = 1
	}
	return Settings{
		IntegrationCycles: cycles,
		Gain:              gain,
		Mode:              mode,
		Indicator:         cfg.Indicator,
	}, nil
}

// Setup connects the sensor, applies the configuration and sets the initial bulb state.
// Connection errors are returned as is so errors.Is(err, ErrNotDetected) holds.
func Setup(ctx context.Context, s Sensor, cfg config.SensorConfig) error {
	settings, err := SettingsFrom(cfg)
	if err != nil {
		return fmt.Errorf("invalid sensor config: %w", err)
	}

	if !s.IsConnected() {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}

	if err := s.Configure(ctx, settings); err != nil {
		return fmt.Errorf("failed to configure sensor: %w", err)
	}
	if err := s.SetBulb(ctx, cfg.Bulb); err != nil {
		return fmt.Errorf("failed to set bulb: %w", err)
	}

	log.Info().
		Uint8("cycles", settings.IntegrationCycles).
		Stringer("gain", settings.Gain).
		Stringer("mode", settings.Mode).
		Bool("bulb", cfg.Bulb).
		Msg("sensor configured")
	return nil
}
