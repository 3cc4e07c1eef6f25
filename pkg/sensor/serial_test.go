package sensor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/spectrodo/pkg/as7265x"
	"github.com/itohio/spectrodo/pkg/bridge"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

// fakeBridge answers bridge commands the way the firmware does.
type fakeBridge struct {
	halted bool // Answer every line with a heartbeat
	silent bool // Never answer
	data   spectrum.Vector

	slowFirst time.Duration   // Delay before answering the first measurement
	count     bool            // Write the measurement number into channel A
	answers   map[byte]string // Replaces the reply body for an opcode

	mu       sync.Mutex
	received []string
	measures int
}

func (f *fakeBridge) serve(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		cmd, err := bridge.ParseCommand(line)

		f.mu.Lock()
		if err == nil {
			f.received = append(f.received, cmd.String())
		} else {
			f.received = append(f.received, line)
		}
		silent, halted := f.silent, f.halted
		f.mu.Unlock()

		switch {
		case silent:
			continue
		case halted:
			io.WriteString(conn, ".\n")
			continue
		}

		tag := string(bridge.AppendTag(nil, cmd.Seq))
		if err != nil {
			io.WriteString(conn, tag+"ERR "+err.Error()+"\n")
			continue
		}
		if body, ok := f.answers[cmd.Op]; ok {
			io.WriteString(conn, tag+body+"\n")
			continue
		}
		switch cmd.Op {
		case bridge.OpProbe:
			io.WriteString(conn, tag+"OK AS7265X 0x41\n")
		case bridge.OpMeasure:
			f.mu.Lock()
			f.measures++
			n := f.measures
			f.mu.Unlock()

			v := f.data
			if f.count {
				v[0] = float64(n)
			}
			if n == 1 && f.slowFirst > 0 {
				time.Sleep(f.slowFirst)
			}
			conn.Write(append(bridge.AppendData([]byte(tag), v), '\n'))
		default:
			io.WriteString(conn, tag+"OK\n")
		}
	}
}

func (f *fakeBridge) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func newPipedSerial(t *testing.T, fw *fakeBridge) *Serial {
	t.Helper()

	host, device := net.Pipe()
	go fw.serve(device)
	t.Cleanup(func() { device.Close() })

	s := NewSerial("pipe", 0, 200*time.Millisecond)
	s.open = func() (io.ReadWriteCloser, error) { return host, nil }
	return s
}

func TestNewSerial_Defaults(t *testing.T) {
	s := NewSerial("/dev/ttyACM0", 0, 0)
	assert.Equal(t, "/dev/ttyACM0", s.port)
	assert.Equal(t, DefaultBaudRate, s.baudRate)
	assert.Equal(t, DefaultTimeout, s.timeout)
	assert.False(t, s.IsConnected())
}

func TestSerial_ConnectProbes(t *testing.T) {
	fw := &fakeBridge{}
	s := newPipedSerial(t, fw)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	assert.True(t, s.IsConnected())
	assert.Equal(t, []string{"?"}, fw.lines())
	assert.Error(t, s.Connect(context.Background()), "second connect must fail")
}

func TestSerial_HaltedFirmwareIsNotDetected(t *testing.T) {
	s := newPipedSerial(t, &fakeBridge{halted: true})

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDetected)
	assert.False(t, s.IsConnected())
}

func TestSerial_SilentFirmwareIsNotDetected(t *testing.T) {
	s := newPipedSerial(t, &fakeBridge{silent: true})
	s.timeout = 20 * time.Millisecond

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDetected)
	assert.Contains(t, err.Error(), "no reply")
}

func TestSerial_MissingPortIsNotDetected(t *testing.T) {
	s := NewSerial("/dev/does-not-exist", 0, 0)
	s.open = func() (io.ReadWriteCloser, error) { return nil, errors.New("no such file or directory") }

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDetected)
	assert.Contains(t, err.Error(), "/dev/does-not-exist")
	assert.False(t, s.IsConnected())
}

func TestSerial_Measure(t *testing.T) {
	var want spectrum.Vector
	for i := range want {
		want[i] = float64(i) + 0.25
	}
	fw := &fakeBridge{data: want}
	s := newPipedSerial(t, fw)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	got, err := s.Measure(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = s.Measure(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, []string{"?", "M1", "M0"}, fw.lines())
}

func TestSerial_ConfigureAndBulb(t *testing.T) {
	fw := &fakeBridge{}
	s := newPipedSerial(t, fw)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	err := s.Configure(context.Background(), Settings{
		IntegrationCycles: 50,
		Gain:              as7265x.Gain64x,
		Mode:              as7265x.ModeOneShot,
		Indicator:         false,
	})
	require.NoError(t, err)
	require.NoError(t, s.SetBulb(context.Background(), true))
	require.NoError(t, s.SetBulb(context.Background(), false))

	assert.Equal(t, []string{"?", "I50", "G3", "C3", "N0", "L1", "L0"}, fw.lines())
}

func TestSerial_FirmwareError(t *testing.T) {
	fw := &fakeBridge{}
	s := newPipedSerial(t, fw)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	// Integration of zero cycles is rejected by the firmware parser.
	err := s.Configure(context.Background(), Settings{IntegrationCycles: 0})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "I0"), err.Error())
}

func TestSerial_NotConnected(t *testing.T) {
	s := NewSerial("nowhere", 0, 0)

	_, err := s.Measure(context.Background(), false)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, s.SetBulb(context.Background(), true), ErrNotConnected)
	assert.NoError(t, s.Close())
}

func TestSerial_ContextCancelled(t *testing.T) {
	fw := &fakeBridge{}
	s := newPipedSerial(t, fw)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	fw.mu.Lock()
	fw.silent = true
	fw.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Measure(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerial_LateReplyIsNotReused(t *testing.T) {
	fw := &fakeBridge{slowFirst: 150 * time.Millisecond, count: true}
	s := newPipedSerial(t, fw)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	s.timeout = 100 * time.Millisecond

	_, err := s.Measure(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reply")

	got, err := s.Measure(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got[0], "second measurement must not return the first one's data")
}

func TestSerial_ReplyKindMustMatch(t *testing.T) {
	var v spectrum.Vector
	dataBody := string(bridge.AppendData(nil, v))

	fw := &fakeBridge{answers: map[byte]string{
		bridge.OpBulb:    dataBody,
		bridge.OpMeasure: "OK",
	}}
	s := newPipedSerial(t, fw)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	err := s.SetBulb(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected reply")

	_, err = s.Measure(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected reply")
}

func TestSerial_ConfigureHonorsContext(t *testing.T) {
	fw := &fakeBridge{}
	s := newPipedSerial(t, fw)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	fw.mu.Lock()
	fw.silent = true
	fw.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Configure(ctx, Settings{IntegrationCycles: 50})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.SetBulb(ctx, true), context.Canceled)
}
