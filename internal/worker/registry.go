package worker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/oshokin/uwb-telemetry/internal/logger"
)

// Kind is the family of a slot.
type Kind string

const (
	// KindLive slots run serial workers.
	KindLive Kind = "serial"
	// KindReplay slots run replay workers.
	KindReplay Kind = "csv"
)

// Slot addresses one worker position, e.g. serial-1 or csv-3.
type Slot struct {
	Kind  Kind
	Index int
}

// LiveSlot returns the serial slot with the given index.
func LiveSlot(index int) Slot {
	return Slot{Kind: KindLive, Index: index}
}

// ReplaySlot returns the replay slot with the given index.
func ReplaySlot(index int) Slot {
	return Slot{Kind: KindReplay, Index: index}
}

// String implements fmt.Stringer.
func (s Slot) String() string {
	return fmt.Sprintf("%s-%d", s.Kind, s.Index)
}

// Handle tracks one started worker.
type Handle struct {
	// Slot the worker occupies.
	Slot Slot
	// SourceID of the worker.
	SourceID string
	// RunID distinguishes successive runs in the same slot.
	RunID uuid.UUID
	// StartedAt is when Start was called.
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed once the worker has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Running reports whether the worker has not returned yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Err is the error the worker returned, nil while it is running.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Status is a copy of the handle for reporting.
type Status struct {
	Slot      Slot
	SourceID  string
	RunID     uuid.UUID
	StartedAt time.Time
	Running   bool
	Err       error
}

// Status returns a copy of the handle state.
func (h *Handle) Status() Status {
	return Status{
		Slot:      h.Slot,
		SourceID:  h.SourceID,
		RunID:     h.RunID,
		StartedAt: h.StartedAt,
		Running:   h.Running(),
		Err:       h.Err(),
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithExitHook calls fn after a worker returns, from the worker goroutine.
func WithExitHook(fn func(h *Handle)) RegistryOption {
	return func(r *Registry) {
		r.onExit = fn
	}
}

// Registry maps slots to running workers.
type Registry struct {
	handles cmap.ConcurrentMap[string, *Handle]
	onExit  func(h *Handle)
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		handles: cmap.New[*Handle](),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start runs w in its own goroutine under slot and returns its handle.
// The worker context keeps the values of ctx but not its cancellation, so a
// request-scoped ctx may end while the worker keeps running. Any previous
// handle in the slot is replaced; callers check Lookup first.
func (r *Registry) Start(ctx context.Context, slot Slot, w Worker) *Handle {
	h := &Handle{
		Slot:      slot,
		SourceID:  w.SourceID(),
		RunID:     uuid.New(),
		StartedAt: r.now(),
		done:      make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel

	runCtx = logger.WithFields(runCtx, "slot", slot.String(), "source_id", h.SourceID, "run_id", h.RunID.String())

	r.handles.Set(slot.String(), h)

	go r.run(runCtx, h, w)

	return h
}

func (r *Registry) run(ctx context.Context, h *Handle, w Worker) {
	defer close(h.done)
	defer h.cancel()

	defer func() {
		if p := recover(); p != nil {
			h.err = fmt.Errorf("worker %s panicked: %v", h.Slot, p)
		}

		if h.err != nil {
			logger.ErrorKV(ctx, "Worker stopped with error", "error", h.err)
		} else {
			logger.Info(ctx, "Worker stopped")
		}

		if r.onExit != nil {
			r.onExit(h)
		}
	}()

	logger.Info(ctx, "Worker started")

	h.err = w.Run(ctx)
}

// Stop cancels the worker in slot, waits for it to return and then removes
// its handle. When ctx ends first the handle stays in place, still running,
// so the slot keeps reporting busy. Stopping an empty slot is a no-op.
func (r *Registry) Stop(ctx context.Context, slot Slot) error {
	key := slot.String()

	h, ok := r.handles.Get(key)
	if !ok {
		return nil
	}

	h.cancel()

	select {
	case <-h.done:
	case <-ctx.Done():
		return fmt.Errorf("wait for %s to stop: %w", slot, ctx.Err())
	}

	// A concurrent Start may have replaced the handle meanwhile.
	r.handles.RemoveCb(key, func(_ string, current *Handle, exists bool) bool {
		return exists && current == h
	})

	return nil
}

// StopAll stops every worker concurrently and joins the wait errors.
func (r *Registry) StopAll(ctx context.Context) error {
	handles := r.Handles()
	errs := make(chan error, len(handles))

	for _, h := range handles {
		go func() {
			errs <- r.Stop(ctx, h.Slot)
		}()
	}

	joined := make([]error, 0, len(handles))
	for range handles {
		joined = append(joined, <-errs)
	}

	return errors.Join(joined...)
}

// Lookup returns the handle in slot.
func (r *Registry) Lookup(slot Slot) (*Handle, bool) {
	return r.handles.Get(slot.String())
}

// Handles returns every handle sorted by kind then index.
func (r *Registry) Handles() []*Handle {
	items := r.handles.Items()

	handles := make([]*Handle, 0, len(items))
	for _, h := range items {
		handles = append(handles, h)
	}

	slices.SortFunc(handles, func(a, b *Handle) int {
		if c := cmp.Compare(a.Slot.Kind, b.Slot.Kind); c != 0 {
			return c
		}

		return cmp.Compare(a.Slot.Index, b.Slot.Index)
	})

	return handles
}

// Len returns the number of tracked handles, running or finished.
func (r *Registry) Len() int {
	return r.handles.Count()
}
