package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Sensor drivers.
const (
	DriverSerial = "serial"
	DriverI2C    = "i2c"
	DriverMock   = "mock"
)

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Capture CaptureConfig `yaml:"capture"`
	Report  ReportConfig  `yaml:"report"`
	Mock    MockConfig    `yaml:"mock"`
	Log     LogConfig     `yaml:"log"`
}

// SerialConfig contains serial port configuration for the bridge firmware.
type SerialConfig struct {
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"` // Reply timeout per request
}

// SensorConfig contains the startup configuration applied to the AS7265x.
type SensorConfig struct {
	Driver            string `yaml:"driver"` // serial, i2c or mock
	I2CBus            string `yaml:"i2c_bus"`
	I2CAddress        uint16 `yaml:"i2c_address"`
	IntegrationCycles uint8  `yaml:"integration_cycles"` // 2.8ms per cycle
	Gain              string `yaml:"gain"`               // 1x, 3.7x, 16x, 64x
	MeasurementMode   string `yaml:"measurement_mode"`   // 4chan, 4chan_2, 6chan_continuous, 6chan_one_shot
	Indicator         bool   `yaml:"indicator"`
	Bulb              bool   `yaml:"bulb"` // Bulb state at startup
}

// CaptureConfig contains averaging and reporting parameters.
type CaptureConfig struct {
	Samples        int           `yaml:"samples"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	ValidThreshold float64       `yaml:"valid_threshold"`
	WithBulb       bool          `yaml:"with_bulb"` // Light the bulb for every measurement
	TopN           int           `yaml:"top_n"`
}

// ReportConfig controls optional chart export.
type ReportConfig struct {
	ChartDir string `yaml:"chart_dir"` // Empty disables automatic export
}

// MockConfig contains mock sensor configuration.
type MockConfig struct {
	Lamp        float64   `yaml:"lamp"`        // Peak calibrated reading through clear water
	Ambient     float64   `yaml:"ambient"`     // Reading with the bulb off
	NoiseLevel  float64   `yaml:"noise_level"` // Relative noise amplitude
	ClearReads  int       `yaml:"clear_reads"` // Reads that see clear water before the dye appears
	Absorbance  []float64 `yaml:"absorbance"`  // Per-channel dye absorbance, missing channels use PeakA
	PeakA       float64   `yaml:"peak_absorbance"`
	PeakChannel int       `yaml:"peak_channel"`
	Seed        int64     `yaml:"seed"`
	Missing     bool      `yaml:"missing"` // Simulate a sensor that is not detected
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate: 115200,
			Timeout:  2 * time.Second,
		},
		Sensor: SensorConfig{
			Driver:            DriverSerial,
			I2CAddress:        0x49,
			IntegrationCycles: 50,
			Gain:              "64x",
			MeasurementMode:   "6chan_one_shot",
			Indicator:         false,
			Bulb:              true,
		},
		Capture: CaptureConfig{
			Samples:        5,
			SettleDelay:    50 * time.Millisecond,
			ValidThreshold: 0.0001,
			WithBulb:       true,
			TopN:           5,
		},
		Mock: MockConfig{
			Lamp:        1000,
			Ambient:     0,
			NoiseLevel:  0.002,
			ClearReads:  5,
			PeakA:       0.4,
			PeakChannel: 7,
			Seed:        1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error

	switch c.Sensor.Driver {
	case DriverSerial, DriverI2C, DriverMock:
	default:
		err = multierr.Append(err, fmt.Errorf("sensor.driver: unknown driver %q", c.Sensor.Driver))
	}
	if c.Capture.Samples < 1 {
		err = multierr.Append(err, fmt.Errorf("capture.samples: must be at least 1, got %d", c.Capture.Samples))
	}
	if c.Capture.SettleDelay < 0 {
		err = multierr.Append(err, fmt.Errorf("capture.settle_delay: must not be negative, got %s", c.Capture.SettleDelay))
	}
	if c.Capture.ValidThreshold <= 0 {
		err = multierr.Append(err, fmt.Errorf("capture.valid_threshold: must be positive, got %g", c.Capture.ValidThreshold))
	}
	if c.Capture.TopN < 1 {
		err = multierr.Append(err, fmt.Errorf("capture.top_n: must be at least 1, got %d", c.Capture.TopN))
	}
	if c.Mock.PeakChannel < 0 || c.Mock.PeakChannel >= 18 {
		err = multierr.Append(err, fmt.Errorf("mock.peak_channel: must be within 0..17, got %d", c.Mock.PeakChannel))
	}

	return err
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Timeout == 0 {
		c.Serial.Timeout = def.Serial.Timeout
	}

	if c.Sensor.Driver == "" {
		c.Sensor.Driver = def.Sensor.Driver
	}
	if c.Sensor.I2CAddress == 0 {
		c.Sensor.I2CAddress = def.Sensor.I2CAddress
	}
	if c.Sensor.IntegrationCycles == 0 {
		c.Sensor.IntegrationCycles = def.Sensor.IntegrationCycles
	}
	if c.Sensor.Gain == "" {
		c.Sensor.Gain = def.Sensor.Gain
	}
	if c.Sensor.MeasurementMode == "" {
		c.Sensor.MeasurementMode = def.Sensor.MeasurementMode
	}

	if c.Capture.Samples == 0 {
		c.Capture.Samples = def.Capture.Samples
	}
	if c.Capture.ValidThreshold == 0 {
		c.Capture.ValidThreshold = def.Capture.ValidThreshold
	}
	if c.Capture.TopN == 0 {
		c.Capture.TopN = def.Capture.TopN
	}

	if c.Mock.Lamp == 0 {
		c.Mock.Lamp = def.Mock.Lamp
	}
	if c.Mock.ClearReads == 0 {
		c.Mock.ClearReads = def.Mock.ClearReads
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
