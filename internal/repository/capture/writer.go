package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/record"
)

const (
	// fileTimeLayout is ISO 8601 basic format, safe in file names on every OS.
	fileTimeLayout = "20060102T150405Z"

	filePermissions = 0o600
	dirPermissions  = 0o750

	// maxOpenAttempts bounds the numbered names tried when a capture file exists.
	maxOpenAttempts = 100
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("capture file is closed")

// Writer appends measurements to one capture file, one row per measurement.
// Rows are flushed as they are written so a crash loses at most the row in flight.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	csv  *csv.Writer
}

// FileName builds "<start>-<id>.csv" where id is PortSuffix(port, slot).
// The suffix after the last dash is what replay uses as the source id.
func FileName(start time.Time, port string, slot int) string {
	return fileName(start, port, slot, 0)
}

// fileName inserts attempt between the time and the id when it is positive,
// so the id stays after the last dash.
func fileName(start time.Time, port string, slot, attempt int) string {
	name := start.UTC().Format(fileTimeLayout)
	if attempt > 0 {
		name += "-" + strconv.Itoa(attempt)
	}

	return name + "-" + PortSuffix(port, slot) + ".csv"
}

// PortSuffix returns the trailing digits of a port name ("COM4" -> "4",
// "/dev/ttyUSB12" -> "12"), or the slot number when the name ends in a letter.
func PortSuffix(port string, slot int) string {
	end := len(port)
	start := end

	for start > 0 && port[start-1] >= '0' && port[start-1] <= '9' {
		start--
	}

	if start == end {
		return strconv.Itoa(slot)
	}

	return port[start:end]
}

// Open creates dir if needed and creates a new capture file in it. An
// existing file is never reused: a numbered name is tried instead.
func Open(dir string, start time.Time, port string, slot int) (*Writer, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create capture directory %s: %w", dir, err)
	}

	var (
		path string
		file *os.File
		err  error
	)

	// Ports sharing trailing digits may start in the same second; never share a file.
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		path = filepath.Join(dir, fileName(start, port, slot, attempt))

		file, err = os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_EXCL, filePermissions)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	return &Writer{
		path: path,
		file: file,
		csv:  csv.NewWriter(file),
	}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string {
	return w.path
}

// Append writes m as one LayoutCSV row and flushes it.
func (w *Writer) Append(m *telemetry.Measurement) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	if err := w.csv.Write(record.EncodeCSV(m)); err != nil {
		return fmt.Errorf("write capture row: %w", err)
	}

	w.csv.Flush()

	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush capture row: %w", err)
	}

	return nil
}

// Close flushes and closes the file. Calling it twice is safe.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	w.file = nil

	return errors.Join(flushErr, closeErr)
}
