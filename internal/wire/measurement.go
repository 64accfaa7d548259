package wire

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

// MeasurementValue encodes m as
// {timestamp, shape, anchors: [{anchor_id, x, y, z, distance}], fix: {x, y, z, quality_factor}}.
func MeasurementValue(m *telemetry.Measurement) *structpb.Value {
	if m == nil {
		return structpb.NewNullValue()
	}

	anchors := make([]*structpb.Value, 0, len(m.Anchors))
	for _, a := range m.Anchors {
		anchors = append(anchors, object(map[string]*structpb.Value{
			"anchor_id": structpb.NewStringValue(a.AnchorID),
			"x":         structpb.NewNumberValue(a.X),
			"y":         structpb.NewNumberValue(a.Y),
			"z":         structpb.NewNumberValue(a.Z),
			"distance":  structpb.NewNumberValue(a.DistanceToTag),
		}))
	}

	return object(map[string]*structpb.Value{
		"timestamp": structpb.NewStringValue(m.Timestamp),
		"shape":     structpb.NewStringValue(m.Shape().String()),
		"anchors":   list(anchors),
		"fix": object(map[string]*structpb.Value{
			"x":              structpb.NewNumberValue(m.Fix.X),
			"y":              structpb.NewNumberValue(m.Fix.Y),
			"z":              structpb.NewNumberValue(m.Fix.Z),
			"quality_factor": structpb.NewNumberValue(float64(m.Fix.QualityFactor)),
		}),
	})
}

// MeasurementFromStruct decodes a document built by MeasurementValue.
func MeasurementFromStruct(s *structpb.Struct) (*telemetry.Measurement, error) {
	r := newReader(s, "measurement")

	timestamp := r.str("timestamp")
	blocks := r.objects("anchors")

	anchors := make([]telemetry.AnchorReading, 0, len(blocks))
	for i, block := range blocks {
		a := newReader(block, fmt.Sprintf("measurement.anchors[%d]", i))
		reading := telemetry.AnchorReading{
			AnchorID:      a.str("anchor_id"),
			X:             a.num("x"),
			Y:             a.num("y"),
			Z:             a.num("z"),
			DistanceToTag: a.num("distance"),
		}

		if a.err != nil {
			return nil, a.err
		}

		anchors = append(anchors, reading)
	}

	f := newReader(r.object("fix", false), "measurement.fix")
	if r.err != nil {
		return nil, r.err
	}

	fix := telemetry.TagFix{
		X:             f.num("x"),
		Y:             f.num("y"),
		Z:             f.num("z"),
		QualityFactor: f.integer("quality_factor", false),
	}

	if f.err != nil {
		return nil, f.err
	}

	m, err := telemetry.NewMeasurement(timestamp, anchors, fix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	return m, nil
}

// AnchorValue encodes one known anchor position.
func AnchorValue(a telemetry.AnchorLocation) *structpb.Value {
	return object(map[string]*structpb.Value{
		"anchor_id": structpb.NewStringValue(a.AnchorID),
		"x":         structpb.NewNumberValue(a.X),
		"y":         structpb.NewNumberValue(a.Y),
		"z":         structpb.NewNumberValue(a.Z),
	})
}

// AnchorsValue encodes a list of anchor positions.
func AnchorsValue(anchors []telemetry.AnchorLocation) *structpb.Value {
	values := make([]*structpb.Value, 0, len(anchors))
	for _, a := range anchors {
		values = append(values, AnchorValue(a))
	}

	return list(values)
}

// AnchorsDocument wraps an anchor list in a Struct, the form of the snapshot file.
func AnchorsDocument(anchors []telemetry.AnchorLocation) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"anchors": AnchorsValue(anchors),
	}}
}

// AnchorsFromDocument reads the anchor list of an anchors or snapshot document.
func AnchorsFromDocument(s *structpb.Struct) ([]telemetry.AnchorLocation, error) {
	return anchorsFrom(newReader(s, "document"), "anchors")
}

// anchorsFrom decodes the anchor list stored under key.
func anchorsFrom(r *reader, key string) ([]telemetry.AnchorLocation, error) {
	blocks := r.objects(key)
	if r.err != nil {
		return nil, r.err
	}

	anchors := make([]telemetry.AnchorLocation, 0, len(blocks))

	for i, block := range blocks {
		a := newReader(block, fmt.Sprintf("%s.%s[%d]", r.path, key, i))
		loc := telemetry.AnchorLocation{
			AnchorID: a.str("anchor_id"),
			X:        a.num("x"),
			Y:        a.num("y"),
			Z:        a.num("z"),
		}

		if a.err != nil {
			return nil, a.err
		}

		anchors = append(anchors, loc)
	}

	return anchors, nil
}
