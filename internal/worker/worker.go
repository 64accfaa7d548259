package worker

import (
	"context"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

// Sink receives everything a worker produces. Calls for one source come from
// a single goroutine in record order. Implementations must not block for long.
type Sink interface {
	// OnMeasurement is called for every decoded record.
	OnMeasurement(sourceID string, m *telemetry.Measurement)
	// OnRecordSkipped is called for every record that failed to decode.
	OnRecordSkipped(sourceID string, err error)
	// OnReplayEnded is called once when a replay reaches the end of its file.
	OnReplayEnded(slot Slot, sourceID string)
}

// Worker is a source that runs until its context is canceled or its input ends.
type Worker interface {
	// Run blocks until the worker is done. A canceled context is a normal stop
	// and yields a nil error.
	Run(ctx context.Context) error
	// SourceID is the identifier attached to every measurement.
	SourceID() string
}

// sleep waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
