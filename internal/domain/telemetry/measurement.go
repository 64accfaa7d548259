package telemetry

import (
	"fmt"
	"slices"
)

// Shape tells which record variant produced a measurement.
type Shape int

const (
	// ThreeAnchorFix is a fix computed from three anchors.
	ThreeAnchorFix Shape = 3
	// FourAnchorFix is a fix computed from four anchors.
	FourAnchorFix Shape = 4
)

// MaxQualityFactor is the upper bound of the device-reported fix confidence.
const MaxQualityFactor = 100

// String implements fmt.Stringer.
func (s Shape) String() string {
	switch s {
	case ThreeAnchorFix:
		return "three-anchor"
	case FourAnchorFix:
		return "four-anchor"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// AnchorReading is one anchor block of a record: where the anchor is and how far the tag was.
type AnchorReading struct {
	// AnchorID is the short anchor identifier reported by the device, e.g. "4818".
	AnchorID string
	// X, Y, Z are the fixed anchor coordinates in meters.
	X, Y, Z float64
	// DistanceToTag is the measured range from this anchor to the tag in meters.
	DistanceToTag float64
}

// Location drops the range and keeps the anchor position.
func (a AnchorReading) Location() AnchorLocation {
	return AnchorLocation{
		AnchorID: a.AnchorID,
		X:        a.X,
		Y:        a.Y,
		Z:        a.Z,
	}
}

// TagFix is the position the device resolved for the tag.
type TagFix struct {
	// X, Y, Z are the computed tag coordinates in meters.
	X, Y, Z float64
	// QualityFactor is the device confidence of the fix, 0..100.
	QualityFactor int
}

// AnchorLocation is a known anchor position, deduplicated by AnchorID.
type AnchorLocation struct {
	// AnchorID identifies the anchor.
	AnchorID string
	// X, Y, Z are the anchor coordinates in meters.
	X, Y, Z float64
}

// Measurement is one decoded telemetry record.
type Measurement struct {
	// Timestamp is source-defined: RFC 3339 wall clock or elapsed seconds for live capture,
	// the original string for replays.
	Timestamp string
	// Anchors holds three or four anchor readings in record order.
	Anchors []AnchorReading
	// Fix is the resolved tag position.
	Fix TagFix
}

// NewMeasurement builds a validated measurement. The anchors slice is copied.
func NewMeasurement(timestamp string, anchors []AnchorReading, fix TagFix) (*Measurement, error) {
	m := &Measurement{
		Timestamp: timestamp,
		Anchors:   slices.Clone(anchors),
		Fix:       fix,
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// Validate checks the anchor count and the quality factor range.
func (m *Measurement) Validate() error {
	if n := len(m.Anchors); n != int(ThreeAnchorFix) && n != int(FourAnchorFix) {
		return fmt.Errorf("%w: got %d", ErrInvalidShape, n)
	}

	if m.Fix.QualityFactor < 0 || m.Fix.QualityFactor > MaxQualityFactor {
		return fmt.Errorf("%w: quality factor %d out of range", ErrMalformedRecord, m.Fix.QualityFactor)
	}

	return nil
}

// Shape reports the record variant of the measurement.
func (m *Measurement) Shape() Shape {
	return Shape(len(m.Anchors))
}

// Clone returns a deep copy of the measurement.
func (m *Measurement) Clone() *Measurement {
	if m == nil {
		return nil
	}

	return &Measurement{
		Timestamp: m.Timestamp,
		Anchors:   slices.Clone(m.Anchors),
		Fix:       m.Fix,
	}
}
