package worker

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port is the part of a serial port a live worker uses.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds each Read. A timed out Read returns 0, nil.
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port by name.
type Opener func(name string, baudRate int) (Port, error)

// SerialOpener opens a real serial port, 8N1 at baudRate.
func SerialOpener(name string, baudRate int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}

	return p, nil
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	return ports, nil
}

// maxPendingBytes caps a line that never ends, e.g. a device stuck in binary output.
const maxPendingBytes = 64 << 10

// lineReader splits raw port bytes into lines.
type lineReader struct {
	src     io.Reader
	buf     []byte
	pending []byte
}

func newLineReader(src io.Reader) *lineReader {
	return &lineReader{
		src: src,
		buf: make([]byte, 512),
	}
}

// next returns the next complete line, stripped and with invalid UTF-8 removed.
// ok is false when the read timed out before a line was completed.
func (r *lineReader) next() (line string, ok bool, err error) {
	if line, ok = r.cut(); ok {
		return line, true, nil
	}

	n, err := r.src.Read(r.buf)
	if n > 0 {
		r.pending = append(r.pending, r.buf[:n]...)
		if len(r.pending) > maxPendingBytes && bytes.IndexByte(r.pending, '\n') < 0 {
			r.pending = r.pending[:0]
		}
	}

	if err != nil {
		return "", false, err
	}

	line, ok = r.cut()

	return line, ok, nil
}

func (r *lineReader) cut() (string, bool) {
	i := bytes.IndexByte(r.pending, '\n')
	if i < 0 {
		return "", false
	}

	line := strings.ToValidUTF8(string(r.pending[:i]), "")
	r.pending = append(r.pending[:0], r.pending[i+1:]...)

	return strings.TrimSpace(line), true
}
