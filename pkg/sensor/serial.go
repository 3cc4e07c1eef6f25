package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/itohio/spectrodo/pkg/bridge"
	"github.com/itohio/spectrodo/pkg/spectrum"
)

const (
	// DefaultBaudRate is the standard baud rate for the bridge firmware.
	DefaultBaudRate = 115200
	// DefaultTimeout is how long a request waits for its reply.
	DefaultTimeout = 2 * time.Second

	lineBufferSize = 16
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial is a sensor behind the bridge firmware on a serial port.
type Serial struct {
	port     string
	baudRate int
	timeout  time.Duration
	open     func() (io.ReadWriteCloser, error)

	reqMu sync.Mutex // One request in flight
	seq   uint16     // Tag of the last request, guarded by reqMu

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	lines     chan string
	readDone  chan struct{}
	connected bool
}

// NewSerial creates a serial sensor on the given port. Zero values select defaults.
func NewSerial(port string, baudRate int, timeout time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	s := &Serial{
		port:     port,
		baudRate: baudRate,
		timeout:  timeout,
	}
	s.open = func() (io.ReadWriteCloser, error) {
		return serial.Open(s.port, &serial.Mode{BaudRate: s.baudRate})
	}
	return s
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the port, starts the line reader and probes the firmware.
// A missing port, a halted firmware (heartbeat) or a silent one yields ErrNotDetected.
func (s *Serial) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, err := s.open()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: failed to open serial port %s: %v", ErrNotDetected, s.port, err)
	}

	s.conn = conn
	s.lines = make(chan string, lineBufferSize)
	s.readDone = make(chan struct{})
	s.connected = true
	go s.readLines(conn, s.lines, s.readDone)
	s.mu.Unlock()

	reply, err := s.request(ctx, bridge.Command{Op: bridge.OpProbe})
	if err != nil {
		s.Close()
		return fmt.Errorf("%w on %s: %v", ErrNotDetected, s.port, err)
	}

	log.Info().Str("port", s.port).Str("device", reply.Text).Msg("sensor bridge connected")
	return nil
}

// Close closes the connection and stops the line reader.
func (s *Serial) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	conn := s.conn
	done := s.readDone
	s.conn = nil
	s.mu.Unlock()

	err := conn.Close()
	<-done
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.port, err)
	}
	return nil
}

// IsConnected returns whether the sensor is currently connected.
func (s *Serial) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Configure sends the integration time, gain, mode and indicator settings.
func (s *Serial) Configure(ctx context.Context, settings Settings) error {
	cmds := []bridge.Command{
		{Op: bridge.OpIntegration, Arg: int(settings.IntegrationCycles)},
		{Op: bridge.OpGain, Arg: int(settings.Gain)},
		{Op: bridge.OpMode, Arg: int(settings.Mode)},
		{Op: bridge.OpIndicator, Arg: bridge.Flag(settings.Indicator)},
	}
	for _, cmd := range cmds {
		if _, err := s.request(ctx, cmd); err != nil {
			return fmt.Errorf("failed to send %s: %w", cmd, err)
		}
	}
	return nil
}

// SetBulb turns the bulbs on or off.
func (s *Serial) SetBulb(ctx context.Context, on bool) error {
	cmd := bridge.Command{Op: bridge.OpBulb, Arg: bridge.Flag(on)}
	if _, err := s.request(ctx, cmd); err != nil {
		return fmt.Errorf("failed to send bulb command: %w", err)
	}
	return nil
}

// Measure triggers a one-shot conversion and returns the calibrated values.
func (s *Serial) Measure(ctx context.Context, withBulb bool) (spectrum.Vector, error) {
	reply, err := s.request(ctx, bridge.Command{Op: bridge.OpMeasure, Arg: bridge.Flag(withBulb)})
	if err != nil {
		return spectrum.Vector{}, fmt.Errorf("measure: %w", err)
	}
	return reply.Data, nil
}

// nextSeq returns the tag for the next request, skipping the untagged 0.
func (s *Serial) nextSeq() uint16 {
	s.seq++
	if s.seq == 0 {
		s.seq = 1
	}
	return s.seq
}

// request writes one tagged command and waits for the reply carrying the same
// tag and a kind that answers the command. Late replies to earlier timed-out
// requests and stray READY lines are skipped; a heartbeat means the firmware is halted.
func (s *Serial) request(ctx context.Context, cmd bridge.Command) (bridge.Reply, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.RLock()
	conn, lines, connected := s.conn, s.lines, s.connected
	s.mu.RUnlock()
	if !connected {
		return bridge.Reply{}, ErrNotConnected
	}

	// Drop anything left over from an earlier timed-out request.
	for drained := false; !drained; {
		select {
		case line, ok := <-lines:
			if !ok {
				return bridge.Reply{}, ErrNotConnected
			}
			log.Debug().Str("line", line).Msg("dropping stale line")
		default:
			drained = true
		}
	}

	cmd.Seq = s.nextSeq()
	if _, err := conn.Write(cmd.Line()); err != nil {
		return bridge.Reply{}, fmt.Errorf("failed to write %s: %w", cmd, err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return bridge.Reply{}, ctx.Err()
		case <-timer.C:
			return bridge.Reply{}, fmt.Errorf("no reply to %s within %s", cmd, s.timeout)
		case line, ok := <-lines:
			if !ok {
				return bridge.Reply{}, ErrNotConnected
			}
			reply, err := bridge.ParseReply(line)
			switch {
			case reply.Kind == bridge.ReplyReady:
				continue
			case errors.Is(err, bridge.ErrHeartbeat):
				return reply, ErrNotDetected
			case reply.Kind == bridge.ReplyUnknown:
				log.Warn().Str("line", line).Msg("ignoring unrecognized line from bridge")
				continue
			case reply.Seq != cmd.Seq:
				log.Debug().Str("line", line).Uint16("want", cmd.Seq).Msg("dropping late reply")
				continue
			case !reply.Answers(cmd):
				return reply, fmt.Errorf("unexpected reply to %s: %q", cmd, line)
			}
			return reply, err
		}
	}
}

// readLines scans lines from the port until it is closed.
func (s *Serial) readLines(conn io.Reader, lines chan<- string, done chan<- struct{}) {
	defer close(done)
	defer close(lines)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic in serial reader")
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case lines <- line:
		default:
			log.Warn().Str("line", line).Msg("line buffer full, dropping line")
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && s.IsConnected() {
		log.Error().Err(err).Str("port", s.port).Msg("error reading from serial port")
	}
}
