package worker

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

var errPortClosed = errors.New("port closed")

// quickHandshake keeps tests that do not check activation timing fast.
var quickHandshake = Handshake{
	Settle:       time.Millisecond,
	CommandGap:   time.Millisecond,
	ActivateWait: time.Millisecond,
}

// fakePort serves scripted chunks, then behaves like an idle port whose reads time out.
type fakePort struct {
	mu      sync.Mutex
	chunks  [][]byte
	written bytes.Buffer
	timeout time.Duration
	closed  bool
	// readErr is returned once the chunks are exhausted.
	readErr  error
	writeErr error
}

func newFakePort(chunks ...string) *fakePort {
	p := &fakePort{timeout: time.Second}
	for _, c := range chunks {
		p.chunks = append(p.chunks, []byte(c))
	}

	return p
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return 0, errPortClosed
	}

	if len(p.chunks) > 0 {
		n := copy(b, p.chunks[0])
		if p.chunks[0] = p.chunks[0][n:]; len(p.chunks[0]) == 0 {
			p.chunks = p.chunks[1:]
		}

		p.mu.Unlock()

		return n, nil
	}

	err, timeout := p.readErr, p.timeout
	p.mu.Unlock()

	if err != nil {
		return 0, err
	}

	time.Sleep(timeout)

	return 0, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}

	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timeout = t

	return nil
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.written.String()
}

func (p *fakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func openerFor(p *fakePort) Opener {
	return func(string, int) (Port, error) {
		return p, nil
	}
}

type emitted struct {
	sourceID string
	m        *telemetry.Measurement
}

// recordingSink keeps every callback for assertions.
type recordingSink struct {
	mu       sync.Mutex
	measured []emitted
	skipped  []error
	ended    []Slot
}

func (s *recordingSink) OnMeasurement(sourceID string, m *telemetry.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.measured = append(s.measured, emitted{sourceID: sourceID, m: m})
}

func (s *recordingSink) OnRecordSkipped(_ string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skipped = append(s.skipped, err)
}

func (s *recordingSink) OnReplayEnded(slot Slot, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ended = append(s.ended, slot)
}

func (s *recordingSink) counts() (measured, skipped, ended int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.measured), len(s.skipped), len(s.ended)
}

func (s *recordingSink) measurements() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]emitted(nil), s.measured...)
}
