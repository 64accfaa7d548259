package record

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

const (
	// serialPrefix starts every ranging line the device prints.
	serialPrefix = "DIST"
	// serialFixMarker labels the fix block of a ranging line.
	serialFixMarker = "POS"
)

// AcceptSerialLine reports whether a raw device line carries ranging telemetry.
// Anything else is device chatter and is dropped without being decoded.
func AcceptSerialLine(line string) bool {
	return strings.HasPrefix(line, serialPrefix) && strings.Contains(line, serialFixMarker)
}

// DecodeLine splits a comma-separated line and decodes it.
func DecodeLine(line string, layout Layout) (*telemetry.Measurement, error) {
	return Decode(strings.Split(line, ","), layout)
}

// Decode turns the fields of one record into a Measurement.
// Any missing or unparsable field fails the whole record with telemetry.ErrMalformedRecord.
func Decode(fields []string, layout Layout) (*telemetry.Measurement, error) {
	off, ok := layoutOffsets[layout]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported layout %s", telemetry.ErrMalformedRecord, layout)
	}

	r := fieldReader{fields: fields}

	timestamp := r.text(0, "timestamp")

	count := 0

	switch flag := r.text(off.discriminator, "anchor count"); flag {
	case "3":
		count = int(telemetry.ThreeAnchorFix)
	case "4":
		count = int(telemetry.FourAnchorFix)
	default:
		if r.err == nil {
			r.fail(off.discriminator, "anchor count", fmt.Errorf("want 3 or 4, got %q", flag))
		}

		return nil, r.err
	}

	anchors := make([]telemetry.AnchorReading, 0, count)

	for i := range count {
		base := off.firstAnchor + i*off.anchorStride
		anchors = append(anchors, telemetry.AnchorReading{
			AnchorID:      r.text(base, "anchor id"),
			X:             r.float(base+1, "anchor x"),
			Y:             r.float(base+2, "anchor y"),
			Z:             r.float(base+3, "anchor z"),
			DistanceToTag: r.float(base+4, "anchor distance"),
		})
	}

	at := off.fixOffset(count)
	fix := telemetry.TagFix{
		X:             r.float(at, "fix x"),
		Y:             r.float(at+1, "fix y"),
		Z:             r.float(at+2, "fix z"),
		QualityFactor: r.int(at+3, "quality factor"),
	}

	if r.err != nil {
		return nil, r.err
	}

	m, err := telemetry.NewMeasurement(timestamp, anchors, fix)
	if err != nil {
		if errors.Is(err, telemetry.ErrMalformedRecord) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", telemetry.ErrMalformedRecord, err)
	}

	return m, nil
}

// fieldReader reads positional fields and keeps the first failure.
type fieldReader struct {
	// fields are the raw record fields.
	fields []string
	// err is the first error met, later reads are no-ops.
	err error
}

func (r *fieldReader) fail(index int, name string, cause error) {
	r.err = fmt.Errorf("%w: field %d (%s): %w", telemetry.ErrMalformedRecord, index, name, cause)
}

func (r *fieldReader) text(index int, name string) string {
	if r.err != nil {
		return ""
	}

	if index >= len(r.fields) {
		r.fail(index, name, errors.New("missing"))
		return ""
	}

	value := strings.TrimSpace(r.fields[index])
	if value == "" {
		r.fail(index, name, errors.New("empty"))
	}

	return value
}

func (r *fieldReader) float(index int, name string) float64 {
	s := r.text(index, name)
	if r.err != nil {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(index, name, err)
		return 0
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.fail(index, name, fmt.Errorf("non-finite value %q", s))
		return 0
	}

	return v
}

func (r *fieldReader) int(index int, name string) int {
	s := r.text(index, name)
	if r.err != nil {
		return 0
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		r.fail(index, name, err)
		return 0
	}

	return v
}
