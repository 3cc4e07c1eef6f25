package as7265x

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTriad emulates the physical STATUS/WRITE/READ registers in front of
// the virtual register file of the three devices.
type fakeTriad struct {
	missing  bool
	noSlaves bool
	neverRdy bool

	global   [256]byte
	devices  [3][256]byte
	selected byte

	pending  int
	readByte byte
	rxValid  bool

	oneShots int
}

func newFakeTriad() *fakeTriad {
	return &fakeTriad{pending: -1}
}

func (f *fakeTriad) Tx(w, r []byte) error {
	if f.missing {
		return errors.New("nack")
	}
	switch {
	case len(w) == 1 && len(r) == 1:
		switch w[0] {
		case regStatus:
			var s byte
			if f.rxValid {
				s |= statusRxValid
			}
			r[0] = s
		case regRead:
			r[0] = f.readByte
			f.rxValid = false
		}
	case len(w) == 2 && w[0] == regWrite:
		if f.pending >= 0 {
			f.writeVirtual(byte(f.pending), w[1])
			f.pending = -1
		} else if w[1]&0x80 != 0 {
			f.pending = int(w[1] & 0x7f)
		} else {
			f.readByte = f.readVirtual(w[1])
			f.rxValid = true
		}
	}
	return nil
}

func (f *fakeTriad) perDevice(addr byte) bool {
	return addr == vregLEDConfig || (addr >= vregCalRGA && addr < vregCalWLF+4)
}

func (f *fakeTriad) readVirtual(addr byte) byte {
	if addr == vregDevSelect {
		if f.noSlaves {
			return f.selected
		}
		return devSelectSlaveMask | f.selected
	}
	if f.perDevice(addr) {
		return f.devices[f.selected][addr]
	}
	return f.global[addr]
}

func (f *fakeTriad) writeVirtual(addr, value byte) {
	if addr == vregDevSelect {
		f.selected = value
		return
	}
	if f.perDevice(addr) {
		f.devices[f.selected][addr] = value
		return
	}
	f.global[addr] = value
	if addr == vregConfig && (value&configModeMask)>>configModeShift == byte(ModeOneShot) && !f.neverRdy {
		f.oneShots++
		f.global[addr] |= configDataReady
	}
}

func (f *fakeTriad) setCalibrated(dev byte, idx int, v float32) {
	binary.BigEndian.PutUint32(f.devices[dev][calibratedRegs[idx]:], math.Float32bits(v))
}

func newTestDev(c Conn) *Dev {
	d := New(c)
	d.sleep = func(time.Duration) {}
	d.timeout = 10 * time.Millisecond
	return d
}

func TestBegin(t *testing.T) {
	f := newFakeTriad()
	d := newTestDev(f)

	require.NoError(t, d.Begin())

	gain := (f.global[vregConfig] & configGainMask) >> configGainShift
	mode := (f.global[vregConfig] & configModeMask) >> configModeShift
	assert.Equal(t, byte(Gain64x), gain)
	assert.Equal(t, byte(ModeOneShot), mode)
	assert.Equal(t, byte(49), f.global[vregIntegration])
	assert.NotZero(t, f.devices[DeviceNIR][vregLEDConfig]&ledIndicatorEnable)
	for dev := 0; dev < 3; dev++ {
		assert.Zero(t, f.devices[dev][vregLEDConfig]&ledBulbEnable, "device %d bulb", dev)
	}
}

func TestBegin_NotDetected(t *testing.T) {
	t.Run("no ack", func(t *testing.T) {
		f := newFakeTriad()
		f.missing = true
		err := newTestDev(f).Begin()
		assert.ErrorIs(t, err, ErrNotDetected)
	})

	t.Run("slaves missing", func(t *testing.T) {
		f := newFakeTriad()
		f.noSlaves = true
		err := newTestDev(f).Begin()
		assert.ErrorIs(t, err, ErrNotDetected)
	})
}

func TestSetGainAndMode(t *testing.T) {
	f := newFakeTriad()
	d := newTestDev(f)

	require.NoError(t, d.SetMeasurementMode(ModeContinuous))
	require.NoError(t, d.SetGain(Gain16x))

	assert.Equal(t, byte(Gain16x), (f.global[vregConfig]&configGainMask)>>configGainShift)
	assert.Equal(t, byte(ModeContinuous), (f.global[vregConfig]&configModeMask)>>configModeShift)

	assert.Error(t, d.SetGain(Gain(4)))
	assert.Error(t, d.SetMeasurementMode(Mode(4)))
}

func TestIndicatorAndBulb(t *testing.T) {
	f := newFakeTriad()
	d := newTestDev(f)

	require.NoError(t, d.EnableIndicator())
	assert.NotZero(t, f.devices[DeviceNIR][vregLEDConfig]&ledIndicatorEnable)
	require.NoError(t, d.DisableIndicator())
	assert.Zero(t, f.devices[DeviceNIR][vregLEDConfig]&ledIndicatorEnable)

	require.NoError(t, d.EnableBulb(BulbUV))
	assert.NotZero(t, f.devices[DeviceUV][vregLEDConfig]&ledBulbEnable)
	assert.Zero(t, f.devices[DeviceNIR][vregLEDConfig]&ledBulbEnable)

	require.NoError(t, d.SetBulbCurrent(BulbCurrent50mA, BulbUV))
	assert.Equal(t, byte(BulbCurrent50mA), (f.devices[DeviceUV][vregLEDConfig]&ledBulbCurMask)>>ledBulbCurShift)
	assert.NotZero(t, f.devices[DeviceUV][vregLEDConfig]&ledBulbEnable, "current change keeps bulb on")

	require.NoError(t, d.DisableBulb(BulbUV))
	assert.Zero(t, f.devices[DeviceUV][vregLEDConfig]&ledBulbEnable)
}

func TestTakeMeasurementsWithBulb(t *testing.T) {
	f := newFakeTriad()
	d := newTestDev(f)

	require.NoError(t, d.TakeMeasurementsWithBulb())
	assert.GreaterOrEqual(t, f.oneShots, 1)
	for dev := 0; dev < 3; dev++ {
		assert.Zero(t, f.devices[dev][vregLEDConfig]&ledBulbEnable, "bulbs are switched off afterwards")
	}
}

func TestTakeMeasurements_Timeout(t *testing.T) {
	f := newFakeTriad()
	f.neverRdy = true
	d := newTestDev(f)
	d.cycles = 0

	err := d.TakeMeasurements()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCalibrated_Order(t *testing.T) {
	f := newFakeTriad()
	for block, dev := range deviceOrder {
		for i := 0; i < 6; i++ {
			f.setCalibrated(dev, i, float32(block*100+i)+0.5)
		}
	}
	f.setCalibrated(DeviceNIR, 5, float32(math.NaN()))

	v, err := newTestDev(f).Calibrated()
	require.NoError(t, err)

	assert.Equal(t, 0.5, v[0])    // A: UV first output
	assert.Equal(t, 5.5, v[5])    // F: UV last output
	assert.Equal(t, 100.5, v[6])  // G: visible first output
	assert.Equal(t, 200.5, v[12]) // M: NIR first output
	assert.Equal(t, 0.0, v[17], "non-finite floats decode as zero")
}

func TestParseGainAndMode(t *testing.T) {
	g, err := ParseGain("64X")
	require.NoError(t, err)
	assert.Equal(t, Gain64x, g)
	assert.Equal(t, "3.7x", Gain3_7x.String())

	_, err = ParseGain("2x")
	assert.Error(t, err)

	m, err := ParseMode("6chan")
	require.NoError(t, err)
	assert.Equal(t, ModeOneShot, m)

	m, err = ParseMode("4chan_2")
	require.NoError(t, err)
	assert.Equal(t, Mode4Chan2, m)

	_, err = ParseMode("8chan")
	assert.Error(t, err)
}
