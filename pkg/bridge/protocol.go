// Package bridge defines the line protocol spoken between the host and the
// sensor bridge firmware over a serial link.
//
// Host to firmware, one command per line:
//
//	?        probe, answered with "OK AS7265X <type>"
//	M0 / M1  measure without / with the bulbs lit, answered with a data line
//	L0 / L1  bulb off / on
//	G<n>     gain code 0..3
//	I<n>     integration cycles 1..255
//	C<n>     measurement mode code 0..3
//	N0 / N1  indicator off / on
//
// A command may carry a sequence tag, "M1#7". The reply to a tagged command
// starts with the same tag, "#7 D,...", so the host can drop replies that
// arrive after their request timed out.
//
// Firmware to host:
//
//	D,<v0>,...,<v17>  calibrated channel values
//	OK [text]         command accepted
//	ERR <text>        command failed
//	READY             sensor configured after boot, never tagged
//	.                 heartbeat, the sensor was not detected and the firmware is halted, never tagged
package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/spectrodo/pkg/spectrum"
)

// Command opcodes.
const (
	OpProbe       byte = '?'
	OpMeasure     byte = 'M'
	OpBulb        byte = 'L'
	OpGain        byte = 'G'
	OpIntegration byte = 'I'
	OpMode        byte = 'C'
	OpIndicator   byte = 'N'
)

// Reply markers.
const (
	DataPrefix = "D,"
	OK         = "OK"
	Err        = "ERR"
	Ready      = "READY"
	Heartbeat  = "."
	TagMark    = '#'
)

// ErrHeartbeat is returned by ParseReply for a heartbeat line.
var ErrHeartbeat = errors.New("bridge: firmware halted, sensor not detected")

// Command is a single host request. Seq 0 means untagged.
type Command struct {
	Op  byte
	Arg int
	Seq uint16
}

// String renders the command without tag and line terminator.
func (c Command) String() string {
	if c.Op == OpProbe {
		return "?"
	}
	return string(c.Op) + strconv.Itoa(c.Arg)
}

// Line renders the tagged command with the line terminator.
func (c Command) Line() []byte {
	buf := []byte(c.String())
	if c.Seq != 0 {
		buf = append(buf, TagMark)
		buf = strconv.AppendUint(buf, uint64(c.Seq), 10)
	}
	return append(buf, '\n')
}

// AppendTag appends the reply tag for seq to buf. Seq 0 appends nothing.
func AppendTag(buf []byte, seq uint16) []byte {
	if seq == 0 {
		return buf
	}
	buf = append(buf, TagMark)
	buf = strconv.AppendUint(buf, uint64(seq), 10)
	return append(buf, ' ')
}

func parseSeq(s string) (uint16, error) {
	seq, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence tag %q", s)
	}
	return uint16(seq), nil
}

// Flag converts a boolean argument.
func Flag(on bool) int {
	if on {
		return 1
	}
	return 0
}

// ParseCommand parses a command line sent by the host. When the line carries
// a valid tag, the returned command keeps its Seq even if parsing fails, so the
// error reply can be tagged.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)

	var seq uint16
	if i := strings.IndexByte(line, TagMark); i >= 0 {
		var err error
		if seq, err = parseSeq(line[i+1:]); err != nil {
			return Command{}, err
		}
		line = line[:i]
	}

	if line == "" {
		return Command{Seq: seq}, fmt.Errorf("empty command")
	}
	op := line[0]
	if op == OpProbe {
		if len(line) != 1 {
			return Command{Seq: seq}, fmt.Errorf("probe takes no argument")
		}
		return Command{Op: OpProbe, Seq: seq}, nil
	}

	arg, err := strconv.Atoi(line[1:])
	if err != nil {
		return Command{Seq: seq}, fmt.Errorf("invalid argument for %c: %w", op, err)
	}

	lo, hi := 0, 0
	switch op {
	case OpMeasure, OpBulb, OpIndicator:
		hi = 1
	case OpGain, OpMode:
		hi = 3
	case OpIntegration:
		lo, hi = 1, 255
	default:
		return Command{Seq: seq}, fmt.Errorf("unknown command %q", op)
	}
	if arg < lo || arg > hi {
		return Command{Seq: seq}, fmt.Errorf("argument for %c out of range: %d (%d..%d)", op, arg, lo, hi)
	}

	return Command{Op: op, Arg: arg, Seq: seq}, nil
}

// AppendData appends a data line (without terminator) for v to buf.
// Values are rendered with float32 precision, which is what the sensor delivers.
func AppendData(buf []byte, v spectrum.Vector) []byte {
	buf = append(buf, DataPrefix...)
	for i, x := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, x, 'g', -1, 32)
	}
	return buf
}

// ParseData parses a data line into a vector.
// Format: D,<18 comma-separated floats>
// Example: D,12.5,13,0,...,7.25
func ParseData(line string) (spectrum.Vector, error) {
	var v spectrum.Vector

	if !strings.HasPrefix(line, DataPrefix) {
		return v, fmt.Errorf("invalid data line: missing %q prefix", DataPrefix)
	}
	parts := strings.Split(line[len(DataPrefix):], ",")
	if len(parts) != spectrum.NumChannels {
		return v, fmt.Errorf("invalid data line: expected %d comma-separated values, got %d", spectrum.NumChannels, len(parts))
	}

	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, fmt.Errorf("invalid value for channel %s: %w", spectrum.Label(i), err)
		}
		v[i] = x
	}
	return v, nil
}

// ReplyKind classifies a firmware line.
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	ReplyOK
	ReplyError
	ReplyData
	ReplyReady
	ReplyHeartbeat
)

// Reply is a parsed firmware line.
type Reply struct {
	Kind ReplyKind
	Seq  uint16          // Tag of the command answered, 0 if untagged
	Text string          // Text after OK / ERR
	Data spectrum.Vector // Set for ReplyData
}

// Answers reports whether r is a reply of the kind cmd expects: a data line
// for a measurement, OK for everything else. Errors answer any command.
func (r Reply) Answers(cmd Command) bool {
	switch r.Kind {
	case ReplyError:
		return true
	case ReplyData:
		return cmd.Op == OpMeasure
	case ReplyOK:
		return cmd.Op != OpMeasure
	}
	return false
}

// ParseReply classifies and parses a firmware line.
func ParseReply(line string) (Reply, error) {
	line = strings.TrimSpace(line)

	var seq uint16
	if len(line) > 0 && line[0] == TagMark {
		tag, rest, _ := strings.Cut(line[1:], " ")
		var err error
		if seq, err = parseSeq(tag); err != nil {
			return Reply{Kind: ReplyUnknown, Text: line}, err
		}
		line = strings.TrimSpace(rest)
	}

	switch {
	case line == Heartbeat:
		return Reply{Kind: ReplyHeartbeat, Seq: seq}, ErrHeartbeat
	case line == Ready:
		return Reply{Kind: ReplyReady, Seq: seq}, nil
	case strings.HasPrefix(line, DataPrefix):
		v, err := ParseData(line)
		if err != nil {
			return Reply{Kind: ReplyData, Seq: seq}, err
		}
		return Reply{Kind: ReplyData, Seq: seq, Data: v}, nil
	case line == OK || strings.HasPrefix(line, OK+" "):
		return Reply{Kind: ReplyOK, Seq: seq, Text: strings.TrimSpace(strings.TrimPrefix(line, OK))}, nil
	case line == Err || strings.HasPrefix(line, Err+" "):
		text := strings.TrimSpace(strings.TrimPrefix(line, Err))
		return Reply{Kind: ReplyError, Seq: seq, Text: text}, fmt.Errorf("firmware error: %s", text)
	}
	return Reply{Kind: ReplyUnknown, Seq: seq, Text: line}, fmt.Errorf("unrecognized line %q", line)
}
