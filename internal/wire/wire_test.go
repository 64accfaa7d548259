package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/events"
	"github.com/oshokin/uwb-telemetry/internal/service/ingest"
	"github.com/oshokin/uwb-telemetry/internal/worker"
)

func sampleMeasurement(anchors int) *telemetry.Measurement {
	m := &telemetry.Measurement{
		Timestamp: "2026-10-18T09:00:00.25Z",
		Fix:       telemetry.TagFix{X: 1.83, Y: 3.33, Z: 2.16, QualityFactor: 47},
	}

	for i := range anchors {
		m.Anchors = append(m.Anchors, telemetry.AnchorReading{
			AnchorID:      string(rune('A' + i)),
			X:             float64(i) + 0.1,
			Y:             -float64(i),
			Z:             2.5,
			DistanceToTag: 1.0 / 3.0,
		})
	}

	return m
}

// viaJSON pushes a Struct through protojson to mimic the wire and the snapshot file.
func viaJSON(t *testing.T, s *structpb.Struct) *structpb.Struct {
	t.Helper()

	data, err := protojson.Marshal(s)
	require.NoError(t, err)

	var out structpb.Struct
	require.NoError(t, protojson.Unmarshal(data, &out))

	return &out
}

// TestMeasurement_Roundtrip covers both shapes.
func TestMeasurement_Roundtrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{3, 4} {
		want := sampleMeasurement(n)

		got, err := MeasurementFromStruct(viaJSON(t, MeasurementValue(want).GetStructValue()))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, isNull := MeasurementValue(nil).GetKind().(*structpb.Value_NullValue)
	require.True(t, isNull)
}

// TestMeasurementFromStruct_Invalid rejects documents with a wrong shape.
func TestMeasurementFromStruct_Invalid(t *testing.T) {
	t.Parallel()

	doc := MeasurementValue(sampleMeasurement(3)).GetStructValue()
	doc.Fields["anchors"].GetListValue().Values = doc.Fields["anchors"].GetListValue().Values[:2]

	_, err := MeasurementFromStruct(doc)
	require.ErrorIs(t, err, ErrInvalidMessage)
	require.ErrorIs(t, err, telemetry.ErrInvalidShape)

	doc = MeasurementValue(sampleMeasurement(3)).GetStructValue()
	doc.Fields["fix"].GetStructValue().Fields["quality_factor"] = structpb.NewNumberValue(47.5)

	_, err = MeasurementFromStruct(doc)
	require.ErrorIs(t, err, ErrInvalidMessage)

	doc = MeasurementValue(sampleMeasurement(3)).GetStructValue()
	doc.Fields["timestamp"] = structpb.NewNumberValue(1)

	_, err = MeasurementFromStruct(doc)
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = MeasurementFromStruct(nil)
	require.ErrorIs(t, err, ErrInvalidMessage)
}

// TestSnapshot_Roundtrip keeps sources with and without a latest fix.
func TestSnapshot_Roundtrip(t *testing.T) {
	t.Parallel()

	want := aggregate.Snapshot{
		Generation: 42,
		Anchors: []telemetry.AnchorLocation{
			{AnchorID: "4818", X: 0.65, Y: 2.49, Z: 2.1},
			{AnchorID: "4819", X: 1, Y: 2, Z: 3},
		},
		Sources: []aggregate.SourceState{
			{SourceID: "COM4", Color: "lime", Latest: sampleMeasurement(4)},
			{SourceID: "csv-2", Color: "cyan"},
		},
	}

	got, err := SnapshotFromStruct(viaJSON(t, SnapshotToStruct(want)))
	require.NoError(t, err)
	require.Equal(t, want, got)

	anchors, err := AnchorsFromDocument(viaJSON(t, AnchorsDocument(want.Anchors)))
	require.NoError(t, err)
	require.Equal(t, want.Anchors, anchors)

	// A full snapshot document also carries the anchor list.
	anchors, err = AnchorsFromDocument(SnapshotToStruct(want))
	require.NoError(t, err)
	require.Equal(t, want.Anchors, anchors)
}

// TestEvent_Roundtrip covers both event kinds.
func TestEvent_Roundtrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 18, 9, 0, 0, 123, time.UTC)

	for _, want := range []events.Event{
		{Kind: events.KindMeasurement, SourceID: "COM4", Measurement: sampleMeasurement(3), At: at},
		{Kind: events.KindReplayEnded, SourceID: "csv-4", Slot: "csv-1", At: at},
	} {
		got, err := EventFromStruct(viaJSON(t, EventToStruct(want)))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := EventFromStruct(&structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":      structpb.NewStringValue("teleport"),
		"source_id": structpb.NewStringValue("x"),
	}})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = EventFromStruct(&structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":      structpb.NewStringValue("measurement"),
		"source_id": structpb.NewStringValue("x"),
	}})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

// TestWorkers_Roundtrip keeps slot, ids, state and error text.
func TestWorkers_Roundtrip(t *testing.T) {
	t.Parallel()

	want := []worker.Status{
		{
			Slot:      worker.ReplaySlot(1),
			SourceID:  "csv-4",
			RunID:     uuid.New(),
			StartedAt: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
			Running:   false,
			Err:       errors.New("source not found: a-4.csv"),
		},
		{
			Slot:      worker.LiveSlot(2),
			SourceID:  "COM4",
			RunID:     uuid.New(),
			StartedAt: time.Date(2026, 10, 18, 9, 1, 0, 5, time.UTC),
			Running:   true,
		},
	}

	got, err := WorkersFromStruct(viaJSON(t, WorkersToStruct(want)))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i := range want {
		require.Equal(t, want[i].Slot, got[i].Slot)
		require.Equal(t, want[i].SourceID, got[i].SourceID)
		require.Equal(t, want[i].RunID, got[i].RunID)
		require.True(t, want[i].StartedAt.Equal(got[i].StartedAt))
		require.Equal(t, want[i].Running, got[i].Running)
	}

	require.EqualError(t, got[0].Err, want[0].Err.Error())
	require.NoError(t, got[1].Err)
}

// TestRequests covers request documents and their required fields.
func TestRequests(t *testing.T) {
	t.Parallel()

	live := ingest.LiveRequest{Slot: 2, Port: "COM4", BaudRate: 9600, EnableLogging: true, Color: "gold"}
	gotLive, err := LiveRequestFromStruct(viaJSON(t, LiveRequestToStruct(live)))
	require.NoError(t, err)
	require.Equal(t, live, gotLive)

	replay := ingest.ReplayRequest{Slot: 3, Path: "logs/a-4.csv", SourceID: "tag", Color: "red"}
	gotReplay, err := ReplayRequestFromStruct(viaJSON(t, ReplayRequestToStruct(replay)))
	require.NoError(t, err)
	require.Equal(t, replay, gotReplay)

	slot, err := SlotFromStruct(SlotToStruct(4))
	require.NoError(t, err)
	require.Equal(t, 4, slot)

	// Minimal live request: optional fields may be absent.
	minimal, err := LiveRequestFromStruct(&structpb.Struct{Fields: map[string]*structpb.Value{
		"slot": structpb.NewNumberValue(1),
		"port": structpb.NewStringValue("COM1"),
	}})
	require.NoError(t, err)
	require.Equal(t, ingest.LiveRequest{Slot: 1, Port: "COM1"}, minimal)

	_, err = SlotFromStruct(&structpb.Struct{})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = SlotFromStruct(&structpb.Struct{Fields: map[string]*structpb.Value{
		"slot": structpb.NewNumberValue(1.5),
	}})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = ReplayRequestFromStruct(&structpb.Struct{Fields: map[string]*structpb.Value{
		"slot": structpb.NewStringValue("1"),
		"path": structpb.NewStringValue("a-1.csv"),
	}})
	require.ErrorIs(t, err, ErrInvalidMessage)
}
