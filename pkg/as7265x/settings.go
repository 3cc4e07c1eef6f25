package as7265x

import (
	"fmt"
	"strings"
)

// Gain is the analog gain code.
type Gain uint8

const (
	Gain1x Gain = iota
	Gain3_7x
	Gain16x
	Gain64x
)

var gainNames = [...]string{"1x", "3.7x", "16x", "64x"}

func (g Gain) String() string {
	if int(g) < len(gainNames) {
		return gainNames[g]
	}
	return fmt.Sprintf("Gain(%d)", uint8(g))
}

// ParseGain parses "1x", "3.7x", "16x" or "64x".
func ParseGain(s string) (Gain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range gainNames {
		if s == name {
			return Gain(i), nil
		}
	}
	return 0, fmt.Errorf("as7265x: unknown gain %q", s)
}

// Mode is the measurement (bank) mode.
type Mode uint8

const (
	Mode4Chan        Mode = iota // Banks STUV / GHIJ / ABCD only
	Mode4Chan2                   // Banks RTUX / KLIJ / EFCD
	ModeContinuous               // All six channels, continuous
	ModeOneShot                  // All six channels, one shot
)

var modeNames = [...]string{"4chan", "4chan_2", "6chan_continuous", "6chan_one_shot"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode parses one of "4chan", "4chan_2", "6chan_continuous" or "6chan_one_shot".
// "6chan" is accepted as an alias for one shot.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "6chan" {
		return ModeOneShot, nil
	}
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("as7265x: unknown measurement mode %q", s)
}

// BulbCurrent is the LED drive current code.
type BulbCurrent uint8

const (
	BulbCurrent12_5mA BulbCurrent = iota
	BulbCurrent25mA
	BulbCurrent50mA
	BulbCurrent100mA
)

// IndicatorCurrent is the indicator LED drive current code.
type IndicatorCurrent uint8

const (
	IndicatorCurrent1mA IndicatorCurrent = iota
	IndicatorCurrent2mA
	IndicatorCurrent4mA
	IndicatorCurrent8mA
)
