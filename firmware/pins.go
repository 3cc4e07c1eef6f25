package main

import (
	"machine"

	"github.com/itohio/spectrodo/pkg/as7265x"
)

const (
	// Sensor startup configuration
	INTEGRATION_CYCLES = 50 // 50 * 2.8ms = 140ms per conversion
	SENSOR_GAIN        = as7265x.Gain64x
	SENSOR_MODE        = as7265x.ModeOneShot
	USE_BULB           = true // White bulb state after boot

	// Heartbeat period while the sensor is missing
	HEARTBEAT_MS = 500

	// I2C configuration (Qwiic connector)
	PIN_SDA       = machine.SDA_PIN
	PIN_SCL       = machine.SCL_PIN
	I2C_FREQUENCY = 400 * machine.KHz

	// Serial configuration
	// Longest line is a data line: "D," + 18 float32 values of up to 14 characters
	// + separators = ~290 bytes. A sample of 5 reads every ~200ms stays far below
	// the 11,520 bytes/sec that 115200 baud provides.
	UART_BAUD_RATE = 115200

	// Longest accepted command line
	MAX_LINE = 16
)
