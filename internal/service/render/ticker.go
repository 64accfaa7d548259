package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	"github.com/oshokin/uwb-telemetry/internal/logger"
)

// DefaultInterval is the redraw cadence.
const DefaultInterval = 10 * time.Millisecond

// Source is what the ticker reads. *aggregate.State implements it.
type Source interface {
	Generation() uint64
	Snapshot() aggregate.Snapshot
}

// Renderer consumes a snapshot. It runs on the ticker goroutine and must not
// block for longer than an interval.
type Renderer interface {
	Render(ctx context.Context, snap aggregate.Snapshot)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, snap aggregate.Snapshot)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, snap aggregate.Snapshot) {
	f(ctx, snap)
}

// Ticker hands changed snapshots to a renderer at a fixed cadence.
type Ticker struct {
	source   Source
	renderer Renderer
	interval time.Duration
}

// NewTicker creates a ticker. A non-positive interval means DefaultInterval.
func NewTicker(source Source, renderer Renderer, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Ticker{
		source:   source,
		renderer: renderer,
		interval: interval,
	}
}

// Run renders until ctx is canceled. Ticks where the aggregate did not change
// are skipped without copying it.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var (
		last     uint64
		rendered bool
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if gen := t.source.Generation(); rendered && gen == last {
				continue
			}

			snap := t.source.Snapshot()
			t.renderer.Render(ctx, snap)

			last, rendered = snap.Generation, true
		}
	}
}

// LogRenderer writes a one-line summary of each frame at debug level.
type LogRenderer struct{}

// Render implements Renderer.
func (LogRenderer) Render(ctx context.Context, snap aggregate.Snapshot) {
	logger.DebugKV(ctx, "Frame",
		"generation", snap.Generation,
		"anchors", len(snap.Anchors),
		"tags", Summary(snap),
	)
}

// Summary renders the tag positions as "id(color)@x,y,z/qf" items.
func Summary(snap aggregate.Snapshot) string {
	var b strings.Builder

	for i, src := range snap.Sources {
		if i > 0 {
			b.WriteString(" ")
		}

		fmt.Fprintf(&b, "%s(%s)", src.SourceID, src.Color)

		if m := src.Latest; m != nil {
			fmt.Fprintf(&b, "@%.2f,%.2f,%.2f/%d", m.Fix.X, m.Fix.Y, m.Fix.Z, m.Fix.QualityFactor)
		}
	}

	return b.String()
}
