package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/worker"
)

// WorkersToStruct encodes slot statuses as {workers: [{slot, kind, index,
// source_id, run_id, started_at, running, error?}]}.
func WorkersToStruct(statuses []worker.Status) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(statuses))

	for _, st := range statuses {
		fields := map[string]*structpb.Value{
			"slot":       structpb.NewStringValue(st.Slot.String()),
			"kind":       structpb.NewStringValue(string(st.Slot.Kind)),
			"index":      structpb.NewNumberValue(float64(st.Slot.Index)),
			"source_id":  structpb.NewStringValue(st.SourceID),
			"run_id":     structpb.NewStringValue(st.RunID.String()),
			"started_at": structpb.NewStringValue(st.StartedAt.UTC().Format(time.RFC3339Nano)),
			"running":    structpb.NewBoolValue(st.Running),
		}

		if st.Err != nil {
			fields["error"] = structpb.NewStringValue(st.Err.Error())
		}

		values = append(values, object(fields))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"workers": list(values),
	}}
}

// WorkersFromStruct decodes a document built by WorkersToStruct.
// Worker errors come back as plain error values carrying the message.
func WorkersFromStruct(s *structpb.Struct) ([]worker.Status, error) {
	r := newReader(s, "workers")
	blocks := r.objects("workers")

	if r.err != nil {
		return nil, r.err
	}

	statuses := make([]worker.Status, 0, len(blocks))

	for i, block := range blocks {
		w := newReader(block, fmt.Sprintf("workers[%d]", i))
		st := worker.Status{
			Slot: worker.Slot{
				Kind:  worker.Kind(w.str("kind")),
				Index: w.integer("index", false),
			},
			SourceID: w.str("source_id"),
			Running:  w.boolean("running"),
		}

		runID := w.str("run_id")
		startedAt := w.str("started_at")

		if msg := w.optStr("error"); msg != "" {
			st.Err = errors.New(msg)
		}

		if w.err != nil {
			return nil, w.err
		}

		var err error

		if st.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("%w: workers[%d].run_id: %w", ErrInvalidMessage, i, err)
		}

		if st.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("%w: workers[%d].started_at: %w", ErrInvalidMessage, i, err)
		}

		statuses = append(statuses, st)
	}

	return statuses, nil
}
