//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"strconv"
	"time"

	"github.com/itohio/spectrodo/pkg/as7265x"
	"github.com/itohio/spectrodo/pkg/bridge"
)

var (
	uart = machine.UART0
	bus  = machine.I2C0

	sensor *as7265x.Dev
	bulbOn = USE_BULB

	// Serial buffer for reading lines
	serialBuffer [MAX_LINE]byte
	serialPos    int
	overflow     bool

	// Reply buffer, reused for every reply
	out []byte
	// Tag of the command being handled, echoed in front of its reply
	tag uint16
)

// i2cConn binds the bus to the sensor address.
type i2cConn struct {
	bus  *machine.I2C
	addr uint16
}

func (c i2cConn) Tx(w, r []byte) error {
	return c.bus.Tx(c.addr, w, r)
}

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	bus.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
		SDA:       PIN_SDA,
		SCL:       PIN_SCL,
	})

	sensor = as7265x.New(i2cConn{bus: bus, addr: as7265x.DefaultAddress})
	if err := sensor.Begin(); err != nil {
		halt()
	}

	if err := configure(); err != nil {
		fail(err)
		halt()
	}
	reply(bridge.Ready)

	for {
		processSerial()
		time.Sleep(time.Millisecond)
	}
}

// halt prints a heartbeat forever. The board has to be reset once the sensor is fixed.
func halt() {
	for {
		reply(bridge.Heartbeat)
		time.Sleep(HEARTBEAT_MS * time.Millisecond)
	}
}

// configure applies the startup configuration.
func configure() error {
	if err := sensor.SetIntegrationCycles(INTEGRATION_CYCLES); err != nil {
		return err
	}
	if err := sensor.SetGain(SENSOR_GAIN); err != nil {
		return err
	}
	if err := sensor.SetMeasurementMode(SENSOR_MODE); err != nil {
		return err
	}
	if err := sensor.DisableIndicator(); err != nil {
		return err
	}
	return setBulb(bulbOn)
}

func setBulb(on bool) error {
	if on {
		return sensor.EnableBulb(as7265x.BulbWhite)
	}
	return sensor.DisableBulb(as7265x.BulbWhite)
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 && !overflow {
				handleLine(string(serialBuffer[:serialPos]))
			} else if overflow {
				tag = 0
				reply(bridge.Err + " line too long")
			}
			serialPos = 0
			overflow = false
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			overflow = true
		}
	}
}

func handleLine(line string) {
	cmd, err := bridge.ParseCommand(line)
	tag = cmd.Seq
	if err != nil {
		fail(err)
		return
	}

	switch cmd.Op {
	case bridge.OpProbe:
		t, err := sensor.DeviceType()
		if err != nil {
			fail(err)
			return
		}
		reply(bridge.OK + " AS7265X " + strconv.FormatUint(uint64(t), 16))
	case bridge.OpMeasure:
		measure(cmd.Arg == 1)
	case bridge.OpBulb:
		bulbOn = cmd.Arg == 1
		ack(setBulb(bulbOn))
	case bridge.OpGain:
		ack(sensor.SetGain(as7265x.Gain(cmd.Arg)))
	case bridge.OpIntegration:
		ack(sensor.SetIntegrationCycles(uint8(cmd.Arg)))
	case bridge.OpMode:
		ack(sensor.SetMeasurementMode(as7265x.Mode(cmd.Arg)))
	case bridge.OpIndicator:
		if cmd.Arg == 1 {
			ack(sensor.EnableIndicator())
		} else {
			ack(sensor.DisableIndicator())
		}
	}
}

// measure runs one conversion and sends the calibrated values.
// A conversion with the bulbs switches them off afterwards, so the
// white bulb is restored when it was on.
func measure(withBulb bool) {
	var err error
	if withBulb {
		err = sensor.TakeMeasurementsWithBulb()
		if err == nil && bulbOn {
			err = setBulb(true)
		}
	} else {
		err = sensor.TakeMeasurements()
	}
	if err != nil {
		fail(err)
		return
	}

	v, err := sensor.Calibrated()
	if err != nil {
		fail(err)
		return
	}

	out = bridge.AppendData(bridge.AppendTag(out[:0], tag), v)
	out = append(out, '\n')
	uart.Write(out)
}

func ack(err error) {
	if err != nil {
		fail(err)
		return
	}
	reply(bridge.OK)
}

func fail(err error) {
	reply(bridge.Err + " " + err.Error())
}

// reply sends one line tagged with the current command's tag.
func reply(line string) {
	out = append(bridge.AppendTag(out[:0], tag), line...)
	out = append(out, '\n')
	uart.Write(out)
}
