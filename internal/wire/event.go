package wire

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/events"
)

// EventToStruct encodes an event as {kind, source_id, at, slot?, measurement?}.
func EventToStruct(e events.Event) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"kind":      structpb.NewStringValue(e.Kind.String()),
		"source_id": structpb.NewStringValue(e.SourceID),
		"at":        structpb.NewStringValue(e.At.UTC().Format(time.RFC3339Nano)),
	}

	if e.Slot != "" {
		fields["slot"] = structpb.NewStringValue(e.Slot)
	}

	if e.Measurement != nil {
		fields["measurement"] = MeasurementValue(e.Measurement)
	}

	return &structpb.Struct{Fields: fields}
}

// EventFromStruct decodes a document built by EventToStruct.
func EventFromStruct(s *structpb.Struct) (events.Event, error) {
	r := newReader(s, "event")

	var e events.Event

	switch kind := r.str("kind"); kind {
	case events.KindMeasurement.String():
		e.Kind = events.KindMeasurement
	case events.KindReplayEnded.String():
		e.Kind = events.KindReplayEnded
	default:
		if r.err == nil {
			return events.Event{}, fmt.Errorf("%w: unknown event kind %q", ErrInvalidMessage, kind)
		}
	}

	e.SourceID = r.str("source_id")
	e.Slot = r.optStr("slot")
	at := r.optStr("at")
	body := r.object("measurement", e.Kind != events.KindMeasurement)

	if r.err != nil {
		return events.Event{}, r.err
	}

	if at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return events.Event{}, fmt.Errorf("%w: event.at: %w", ErrInvalidMessage, err)
		}

		e.At = t
	}

	if body != nil {
		m, err := MeasurementFromStruct(body)
		if err != nil {
			return events.Event{}, err
		}

		e.Measurement = m
	}

	return e, nil
}
