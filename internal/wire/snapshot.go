package wire

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
)

// SnapshotToStruct encodes an aggregate snapshot as
// {generation, anchors: [...], sources: [{source_id, color, latest}]}.
func SnapshotToStruct(snap aggregate.Snapshot) *structpb.Struct {
	sources := make([]*structpb.Value, 0, len(snap.Sources))
	for _, src := range snap.Sources {
		sources = append(sources, object(map[string]*structpb.Value{
			"source_id": structpb.NewStringValue(src.SourceID),
			"color":     structpb.NewStringValue(src.Color),
			"latest":    MeasurementValue(src.Latest),
		}))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"generation": structpb.NewNumberValue(float64(snap.Generation)),
		"anchors":    AnchorsValue(snap.Anchors),
		"sources":    list(sources),
	}}
}

// SnapshotFromStruct decodes a document built by SnapshotToStruct.
func SnapshotFromStruct(s *structpb.Struct) (aggregate.Snapshot, error) {
	r := newReader(s, "snapshot")

	snap := aggregate.Snapshot{
		Generation: uint64(r.integer("generation", true)), //nolint:gosec // Never negative on the wire.
	}

	anchors, err := anchorsFrom(r, "anchors")
	if err != nil {
		return aggregate.Snapshot{}, err
	}

	snap.Anchors = anchors

	for i, block := range r.objects("sources") {
		sr := newReader(block, fmt.Sprintf("snapshot.sources[%d]", i))
		src := aggregate.SourceState{
			SourceID: sr.str("source_id"),
			Color:    sr.optStr("color"),
		}

		if latest := sr.object("latest", true); latest != nil {
			m, err := MeasurementFromStruct(latest)
			if err != nil {
				return aggregate.Snapshot{}, err
			}

			src.Latest = m
		}

		if sr.err != nil {
			return aggregate.Snapshot{}, sr.err
		}

		snap.Sources = append(snap.Sources, src)
	}

	if r.err != nil {
		return aggregate.Snapshot{}, r.err
	}

	return snap, nil
}
