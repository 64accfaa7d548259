package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	"github.com/oshokin/uwb-telemetry/internal/record"
	"github.com/oshokin/uwb-telemetry/internal/repository/capture"
)

// TimestampMode selects how live lines are stamped.
type TimestampMode int

const (
	// TimestampWall stamps with the UTC wall clock in RFC 3339 with nanoseconds.
	TimestampWall TimestampMode = iota
	// TimestampElapsed stamps with seconds since capture start, rounded to milliseconds.
	TimestampElapsed
)

// ParseTimestampMode converts "wall" or "elapsed".
func ParseTimestampMode(s string) (TimestampMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wall", "":
		return TimestampWall, nil
	case "elapsed":
		return TimestampElapsed, nil
	default:
		return 0, fmt.Errorf("unknown timestamp mode %q", s)
	}
}

// Handshake holds the waits of the activation sequence: CR, CR, "lec" CR.
type Handshake struct {
	// Settle is the wait between opening the port and the first byte.
	Settle time.Duration
	// CommandGap follows each of the two carriage returns.
	CommandGap time.Duration
	// ActivateWait follows the "lec" command.
	ActivateWait time.Duration
}

// DefaultHandshake is the timing the tag firmware needs after power-up.
func DefaultHandshake() Handshake {
	return Handshake{
		Settle:       2 * time.Second,
		CommandGap:   500 * time.Millisecond,
		ActivateWait: 100 * time.Millisecond,
	}
}

// withDefaults fills every zero wait from DefaultHandshake.
func (h Handshake) withDefaults() Handshake {
	def := DefaultHandshake()

	if h.Settle <= 0 {
		h.Settle = def.Settle
	}

	if h.CommandGap <= 0 {
		h.CommandGap = def.CommandGap
	}

	if h.ActivateWait <= 0 {
		h.ActivateWait = def.ActivateWait
	}

	return h
}

// DefaultReadTimeout bounds one port read and so the stop latency of a live worker.
const DefaultReadTimeout = time.Second

// LiveConfig describes one serial source.
type LiveConfig struct {
	// Slot is the registry slot the worker runs in.
	Slot Slot
	// PortName is the OS port name, also used as the source id.
	PortName string
	// BaudRate of the port.
	BaudRate int
	// ReadTimeout bounds each read; zero means DefaultReadTimeout.
	ReadTimeout time.Duration
	// Handshake timing; zero waits take the DefaultHandshake values.
	Handshake Handshake
	// LogDirectory enables the capture file when set.
	LogDirectory string
	// TimestampMode selects wall clock or elapsed stamps.
	TimestampMode TimestampMode
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Live reads ranging lines from a serial port.
type Live struct {
	cfg     LiveConfig
	port    Port
	capture *capture.Writer
	sink    Sink
	started time.Time
}

// activation is the command sequence that makes the tag print ranging lines.
//
//nolint:gochecknoglobals // Read-only.
var activation = [...]string{"\r", "\r", "lec\r"}

// NewLive opens the port, and the capture file when enabled, so that start
// failures reach the caller before any goroutine is spawned.
func NewLive(cfg LiveConfig, open Opener, sink Sink) (*Live, error) {
	if cfg.PortName == "" {
		return nil, fmt.Errorf("%w: empty port name", telemetry.ErrConnectionFault)
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	cfg.Handshake = cfg.Handshake.withDefaults()

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if open == nil {
		open = SerialOpener
	}

	port, err := open(cfg.PortName, cfg.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConnectionFault, err)
	}

	if err = port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %w", telemetry.ErrConnectionFault, cfg.PortName, err)
	}

	l := &Live{
		cfg:  cfg,
		port: port,
		sink: sink,
	}

	if cfg.LogDirectory != "" {
		l.capture, err = capture.Open(cfg.LogDirectory, cfg.Now(), cfg.PortName, cfg.Slot.Index)
		if err != nil {
			_ = port.Close()
			return nil, err
		}
	}

	return l, nil
}

// SourceID returns the port name.
func (l *Live) SourceID() string {
	return l.cfg.PortName
}

// CapturePath returns the capture file, or "" when logging is off.
func (l *Live) CapturePath() string {
	if l.capture == nil {
		return ""
	}

	return l.capture.Path()
}

// Run activates the tag and reads lines until ctx is canceled or the port fails.
// The port and the capture file are closed on return.
func (l *Live) Run(ctx context.Context) (err error) {
	defer func() {
		err = errors.Join(err, l.close())
	}()

	if proceed, err := l.handshake(ctx); !proceed {
		return err
	}

	l.started = l.cfg.Now()
	logger.InfoKV(ctx, "Live capture started", "port", l.cfg.PortName, "capture_file", l.CapturePath())

	lines := newLineReader(l.port)

	for ctx.Err() == nil {
		line, ok, readErr := lines.next()
		if readErr != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("%w: read %s: %w", telemetry.ErrConnectionFault, l.cfg.PortName, readErr)
		}

		if ok {
			l.handleLine(ctx, line)
		}
	}

	return nil
}

// handshake sends the activation sequence. proceed is false when ctx was
// canceled during a wait or a write failed.
func (l *Live) handshake(ctx context.Context) (proceed bool, err error) {
	h := l.cfg.Handshake
	waits := [...]time.Duration{h.CommandGap, h.CommandGap, h.ActivateWait}

	if !sleep(ctx, h.Settle) {
		return false, nil
	}

	for i, cmd := range activation {
		if _, err = l.port.Write([]byte(cmd)); err != nil {
			return false, fmt.Errorf("%w: write %q to %s: %w", telemetry.ErrConnectionFault, cmd, l.cfg.PortName, err)
		}

		if !sleep(ctx, waits[i]) {
			return false, nil
		}
	}

	return true, nil
}

// handleLine filters, stamps, decodes, records and emits one device line.
func (l *Live) handleLine(ctx context.Context, line string) {
	if !record.AcceptSerialLine(line) {
		return
	}

	fields := append([]string{l.stamp()}, strings.Split(line, ",")...)

	m, err := record.Decode(fields, record.LayoutSerial)
	if err != nil {
		l.sink.OnRecordSkipped(l.SourceID(), err)
		return
	}

	if l.capture != nil {
		if err = l.capture.Append(m); err != nil {
			logger.ErrorKV(ctx, "Failed to append to capture file", "path", l.capture.Path(), "error", err)
		}
	}

	l.sink.OnMeasurement(l.SourceID(), m)
}

func (l *Live) stamp() string {
	now := l.cfg.Now()
	if l.cfg.TimestampMode == TimestampElapsed {
		elapsed := math.Round(now.Sub(l.started).Seconds()*1000) / 1000
		return strconv.FormatFloat(elapsed, 'f', -1, 64)
	}

	return now.UTC().Format(time.RFC3339Nano)
}

func (l *Live) close() error {
	var captureErr error
	if l.capture != nil {
		captureErr = l.capture.Close()
	}

	portErr := l.port.Close()
	if portErr != nil {
		portErr = fmt.Errorf("close %s: %w", l.cfg.PortName, portErr)
	}

	return errors.Join(captureErr, portErr)
}
