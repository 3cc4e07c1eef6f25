// Package as7265x drives the AMS AS7265x spectral triad (AS72651 master with
// AS72652 and AS72653 slaves) through its virtual register interface.
//
// The package only depends on an I2C transaction function, so the same code
// runs on a Linux host (periph.io) and inside TinyGo firmware (machine.I2C).
//
// Datasheet: https://ams.com/documents/20143/36005/AS7265x_DS000612_1-00.pdf
package as7265x

import (
	"errors"
	"fmt"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/spectrodo/pkg/spectrum"
)

var (
	// ErrNotDetected is returned by Begin when the triad does not answer or a slave is missing.
	ErrNotDetected = errors.New("as7265x: device not detected")
	// ErrTimeout is returned when the device does not complete a transfer or a measurement in time.
	ErrTimeout = errors.New("as7265x: timeout")
)

// Conn is a single I2C device. periph.io's *i2c.Dev satisfies it directly.
type Conn interface {
	Tx(w, r []byte) error
}

// CycleDuration is the length of one integration cycle.
const CycleDuration = 2800 * time.Microsecond

// Dev is an AS7265x triad.
type Dev struct {
	c Conn

	pollDelay time.Duration
	timeout   time.Duration
	cycles    uint8

	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a driver on top of c. No bus traffic happens until Begin.
func New(c Conn) *Dev {
	return &Dev{
		c:         c,
		pollDelay: 5 * time.Millisecond,
		timeout:   time.Second,
		cycles:    49,
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// Begin checks that the master and both slaves are present and applies the
// power-on defaults: bulbs off at 12.5mA, indicator on at 8mA, 49 integration
// cycles, 64x gain and one-shot mode.
func (d *Dev) Begin() error {
	var status [1]byte
	if err := d.c.Tx([]byte{regStatus}, status[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrNotDetected, err)
	}

	sel, err := d.readVirtual(vregDevSelect)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDetected, err)
	}
	if sel&devSelectSlaveMask == 0 {
		return fmt.Errorf("%w: slave devices missing (dev select 0x%02x)", ErrNotDetected, sel)
	}

	for _, b := range []byte{BulbWhite, BulbIR, BulbUV} {
		if err := d.SetBulbCurrent(BulbCurrent12_5mA, b); err != nil {
			return err
		}
		if err := d.DisableBulb(b); err != nil {
			return err
		}
	}
	if err := d.setIndicatorCurrent(IndicatorCurrent8mA); err != nil {
		return err
	}
	if err := d.EnableIndicator(); err != nil {
		return err
	}
	if err := d.SetIntegrationCycles(49); err != nil {
		return err
	}
	if err := d.SetGain(Gain64x); err != nil {
		return err
	}
	return d.SetMeasurementMode(ModeOneShot)
}

// DeviceType returns the hardware version high byte (0x40 for the AS7265x).
func (d *Dev) DeviceType() (byte, error) {
	return d.readVirtual(vregHWVersionHigh)
}

// SetGain sets the sensor gain on all three devices.
func (d *Dev) SetGain(g Gain) error {
	if g > Gain64x {
		return fmt.Errorf("as7265x: invalid gain %d", g)
	}
	return d.updateVirtual(vregConfig, configGainMask, byte(g)<<configGainShift)
}

// SetMeasurementMode selects which channel banks are converted and how.
func (d *Dev) SetMeasurementMode(m Mode) error {
	if m > ModeOneShot {
		return fmt.Errorf("as7265x: invalid measurement mode %d", m)
	}
	return d.updateVirtual(vregConfig, configModeMask, byte(m)<<configModeShift)
}

// SetIntegrationCycles sets the integration time in units of CycleDuration.
func (d *Dev) SetIntegrationCycles(cycles uint8) error {
	if err := d.writeVirtual(vregIntegration, cycles); err != nil {
		return err
	}
	d.cycles = cycles
	return nil
}

// EnableIndicator turns on the blue status LED.
func (d *Dev) EnableIndicator() error {
	return d.updateDeviceLED(DeviceNIR, ledIndicatorEnable, ledIndicatorEnable)
}

// DisableIndicator turns off the blue status LED.
func (d *Dev) DisableIndicator() error {
	return d.updateDeviceLED(DeviceNIR, ledIndicatorEnable, 0)
}

// EnableBulb turns on the bulb attached to the given device.
func (d *Dev) EnableBulb(bulb byte) error {
	return d.updateDeviceLED(bulb, ledBulbEnable, ledBulbEnable)
}

// DisableBulb turns off the bulb attached to the given device.
func (d *Dev) DisableBulb(bulb byte) error {
	return d.updateDeviceLED(bulb, ledBulbEnable, 0)
}

// SetBulbCurrent sets the drive current of the bulb attached to the given device.
func (d *Dev) SetBulbCurrent(cur BulbCurrent, bulb byte) error {
	if cur > BulbCurrent100mA {
		return fmt.Errorf("as7265x: invalid bulb current %d", cur)
	}
	return d.updateDeviceLED(bulb, ledBulbCurMask, byte(cur)<<ledBulbCurShift)
}

func (d *Dev) setIndicatorCurrent(cur IndicatorCurrent) error {
	if cur > IndicatorCurrent8mA {
		return fmt.Errorf("as7265x: invalid indicator current %d", cur)
	}
	return d.updateDeviceLED(DeviceNIR, ledIndicatorCurMask, byte(cur)<<1)
}

// DataAvailable reports whether a completed conversion is waiting.
func (d *Dev) DataAvailable() (bool, error) {
	v, err := d.readVirtual(vregConfig)
	if err != nil {
		return false, err
	}
	return v&configDataReady != 0, nil
}

// TakeMeasurements runs one one-shot conversion and waits for it to finish.
func (d *Dev) TakeMeasurements() error {
	if err := d.updateVirtual(vregConfig, configDataReady, 0); err != nil {
		return err
	}
	if err := d.SetMeasurementMode(ModeOneShot); err != nil {
		return err
	}

	// Two banks are converted per one-shot, allow for both plus margin.
	maxWait := time.Duration(d.cycles) * CycleDuration * 3
	if maxWait < d.timeout {
		maxWait = d.timeout
	}
	deadline := d.now().Add(maxWait)
	for {
		ready, err := d.DataAvailable()
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if d.now().After(deadline) {
			return fmt.Errorf("%w: measurement not ready after %s", ErrTimeout, maxWait)
		}
		d.sleep(d.pollDelay)
	}
}

// TakeMeasurementsWithBulb lights all three bulbs for one conversion.
func (d *Dev) TakeMeasurementsWithBulb() error {
	bulbs := [3]byte{BulbWhite, BulbIR, BulbUV}
	for _, b := range bulbs {
		if err := d.EnableBulb(b); err != nil {
			return err
		}
	}

	measureErr := d.TakeMeasurements()

	for _, b := range bulbs {
		if err := d.DisableBulb(b); err != nil && measureErr == nil {
			measureErr = err
		}
	}
	return measureErr
}

// Calibrated reads the 18 calibrated channel values of the last conversion.
// Blocks of six are ordered UV, visible, NIR.
func (d *Dev) Calibrated() (spectrum.Vector, error) {
	var v spectrum.Vector
	for block, dev := range deviceOrder {
		if err := d.selectDevice(dev); err != nil {
			return v, err
		}
		for i, reg := range calibratedRegs {
			f, err := d.readFloat(reg)
			if err != nil {
				return v, fmt.Errorf("as7265x: channel %s: %w", spectrum.Label(block*6+i), err)
			}
			v[block*6+i] = float64(f)
		}
	}
	return v, nil
}

func (d *Dev) readFloat(addr byte) (float32, error) {
	var bits uint32
	for i := byte(0); i < 4; i++ {
		b, err := d.readVirtual(addr + i)
		if err != nil {
			return 0, err
		}
		bits = bits<<8 | uint32(b)
	}
	f := math32.Float32frombits(bits)
	if math32.IsNaN(f) || math32.IsInf(f, 0) {
		return 0, nil
	}
	return f, nil
}

func (d *Dev) selectDevice(dev byte) error {
	return d.writeVirtual(vregDevSelect, dev)
}

func (d *Dev) updateDeviceLED(dev, mask, value byte) error {
	if err := d.selectDevice(dev); err != nil {
		return err
	}
	return d.updateVirtual(vregLEDConfig, mask, value)
}

func (d *Dev) updateVirtual(addr, mask, value byte) error {
	v, err := d.readVirtual(addr)
	if err != nil {
		return err
	}
	return d.writeVirtual(addr, v&^mask|value&mask)
}

func (d *Dev) readVirtual(addr byte) (byte, error) {
	status, err := d.status()
	if err != nil {
		return 0, err
	}
	if status&statusRxValid != 0 {
		// Drop a stale byte left in the read register.
		if _, err := d.readPhysical(regRead); err != nil {
			return 0, err
		}
	}

	if err := d.waitStatus(statusTxValid, false); err != nil {
		return 0, err
	}
	if err := d.writePhysical(regWrite, addr); err != nil {
		return 0, err
	}
	if err := d.waitStatus(statusRxValid, true); err != nil {
		return 0, err
	}
	return d.readPhysical(regRead)
}

func (d *Dev) writeVirtual(addr, value byte) error {
	if err := d.waitStatus(statusTxValid, false); err != nil {
		return err
	}
	if err := d.writePhysical(regWrite, addr|0x80); err != nil {
		return err
	}
	if err := d.waitStatus(statusTxValid, false); err != nil {
		return err
	}
	return d.writePhysical(regWrite, value)
}

func (d *Dev) waitStatus(bit byte, set bool) error {
	deadline := d.now().Add(d.timeout)
	for {
		status, err := d.status()
		if err != nil {
			return err
		}
		if (status&bit != 0) == set {
			return nil
		}
		if d.now().After(deadline) {
			return fmt.Errorf("%w: status 0x%02x", ErrTimeout, status)
		}
		d.sleep(d.pollDelay)
	}
}

func (d *Dev) status() (byte, error) {
	return d.readPhysical(regStatus)
}

func (d *Dev) readPhysical(reg byte) (byte, error) {
	var r [1]byte
	if err := d.c.Tx([]byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("as7265x: read reg 0x%02x: %w", reg, err)
	}
	return r[0], nil
}

func (d *Dev) writePhysical(reg, value byte) error {
	if err := d.c.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("as7265x: write reg 0x%02x: %w", reg, err)
	}
	return nil
}
