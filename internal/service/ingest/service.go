package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/events"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	"github.com/oshokin/uwb-telemetry/internal/record"
	"github.com/oshokin/uwb-telemetry/internal/worker"
)

var (
	// ErrInvalidSlot is returned for a slot index outside 1..max.
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrSlotBusy is returned when starting a slot whose worker is still running.
	ErrSlotBusy = errors.New("slot is busy")
	// ErrInvalidRequest is returned for a request missing a required field.
	ErrInvalidRequest = errors.New("invalid request")
)

// DefaultBaudRate is used when a live request carries none.
const DefaultBaudRate = 115200

// Options are the ingestion settings shared by every slot.
type Options struct {
	// LogDirectory receives capture files of live slots with logging enabled.
	LogDirectory string
	// ReadTimeout bounds one serial read.
	ReadTimeout time.Duration
	// Handshake is the device activation timing.
	Handshake worker.Handshake
	// ReplayInterval is the pause after each replayed record.
	ReplayInterval time.Duration
	// ReplayLayout is the layout of replayed rows.
	ReplayLayout record.Layout
	// TimestampMode stamps live lines.
	TimestampMode worker.TimestampMode
	// MaxLiveSlots and MaxReplaySlots bound slot indexes.
	MaxLiveSlots   int
	MaxReplaySlots int
}

// LiveRequest starts a serial slot.
type LiveRequest struct {
	Slot          int
	Port          string
	BaudRate      int
	EnableLogging bool
	Color         string
}

// ReplayRequest starts a replay slot.
type ReplayRequest struct {
	Slot     int
	Path     string
	SourceID string
	Color    string
}

// Metrics receives ingestion counters.
type Metrics interface {
	RecordMeasurement(sourceID string)
	RecordSkipped(sourceID string)
	RecordReplayEnded()
	SetActiveWorkers(kind string, n int)
}

// Service owns the registry, the aggregate and the event bus.
type Service struct {
	// ctx carries the daemon logger into worker goroutines.
	ctx  context.Context
	opts Options

	state    *aggregate.State
	registry *worker.Registry
	bus      *events.Bus
	opener   worker.Opener
	metrics  Metrics

	// mu serializes slot starts and stops.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithOpener replaces the serial port opener.
func WithOpener(open worker.Opener) Option {
	return func(s *Service) {
		s.opener = open
	}
}

// WithState uses an existing aggregate, e.g. one seeded with saved anchors.
func WithState(state *aggregate.State) Option {
	return func(s *Service) {
		s.state = state
	}
}

// WithMetrics reports ingestion counters to m.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a service with no running slots.
func New(ctx context.Context, opts Options, options ...Option) *Service {
	if opts.MaxLiveSlots <= 0 {
		opts.MaxLiveSlots = 4
	}

	if opts.MaxReplaySlots <= 0 {
		opts.MaxReplaySlots = 4
	}

	s := &Service{
		ctx:    ctx,
		opts:   opts,
		bus:    events.New(),
		opener: worker.SerialOpener,
	}

	for _, opt := range options {
		opt(s)
	}

	if s.state == nil {
		s.state = aggregate.New()
	}

	s.registry = worker.NewRegistry(worker.WithExitHook(s.onWorkerExit))

	return s
}

// StartLive opens the port of req and starts reading it in slot req.Slot.
func (s *Service) StartLive(ctx context.Context, req LiveRequest) error {
	slot := worker.LiveSlot(req.Slot)
	if err := s.checkSlot(slot); err != nil {
		return err
	}

	port := strings.TrimSpace(req.Port)
	if port == "" {
		return fmt.Errorf("%w: port is required", ErrInvalidRequest)
	}

	baudRate := req.BaudRate
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.claimLocked(ctx, slot); err != nil {
		return err
	}

	cfg := worker.LiveConfig{
		Slot:          slot,
		PortName:      port,
		BaudRate:      baudRate,
		ReadTimeout:   s.opts.ReadTimeout,
		Handshake:     s.opts.Handshake,
		TimestampMode: s.opts.TimestampMode,
	}

	if req.EnableLogging {
		cfg.LogDirectory = s.opts.LogDirectory
	}

	live, err := worker.NewLive(cfg, s.opener, s)
	if err != nil {
		return fmt.Errorf("start %s: %w", slot, err)
	}

	color := s.state.Register(live.SourceID(), req.Color)
	h := s.registry.Start(s.ctx, slot, live)
	s.refreshActive(nil)

	logger.InfoKV(ctx, "Live slot started",
		"slot", slot.String(),
		"port", port,
		"baud_rate", baudRate,
		"color", color,
		"capture_file", live.CapturePath(),
		"run_id", h.RunID.String(),
	)

	return nil
}

// StopLive stops the serial slot and forgets its source.
func (s *Service) StopLive(ctx context.Context, index int) error {
	return s.stop(ctx, worker.LiveSlot(index))
}

// StartReplay starts replaying req.Path in slot req.Slot.
func (s *Service) StartReplay(ctx context.Context, req ReplayRequest) error {
	slot := worker.ReplaySlot(req.Slot)
	if err := s.checkSlot(slot); err != nil {
		return err
	}

	if strings.TrimSpace(req.Path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.claimLocked(ctx, slot); err != nil {
		return err
	}

	replay, err := worker.NewReplay(worker.ReplayConfig{
		Slot:     slot,
		Path:     req.Path,
		SourceID: req.SourceID,
		Interval: s.opts.ReplayInterval,
		Layout:   s.opts.ReplayLayout,
	}, s)
	if err != nil {
		return fmt.Errorf("start %s: %w", slot, err)
	}

	color := s.state.Register(replay.SourceID(), req.Color)
	h := s.registry.Start(s.ctx, slot, replay)
	s.refreshActive(nil)

	logger.InfoKV(ctx, "Replay slot started",
		"slot", slot.String(),
		"path", req.Path,
		"source_id", replay.SourceID(),
		"color", color,
		"run_id", h.RunID.String(),
	)

	return nil
}

// StopReplay stops the replay slot and forgets its source.
func (s *Service) StopReplay(ctx context.Context, index int) error {
	return s.stop(ctx, worker.ReplaySlot(index))
}

// Reset stops every worker, then clears the aggregate.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.registry.StopAll(ctx)

	// Workers that outlived ctx stay registered under their color.
	kept := make(map[string]string)

	for _, h := range s.registry.Handles() {
		if color, ok := s.state.Color(h.SourceID); ok && h.Running() {
			kept[h.SourceID] = color
		}
	}

	s.state.Reset()

	for sourceID, color := range kept {
		s.state.Register(sourceID, color)
	}

	s.refreshActive(nil)

	logger.Info(ctx, "Ingestion state reset")

	return err
}

// Snapshot returns a consistent copy of the aggregate.
func (s *Service) Snapshot() aggregate.Snapshot {
	return s.state.Snapshot()
}

// Workers returns the status of every tracked slot.
func (s *Service) Workers() []worker.Status {
	handles := s.registry.Handles()

	statuses := make([]worker.Status, 0, len(handles))
	for _, h := range handles {
		statuses = append(statuses, h.Status())
	}

	return statuses
}

// Subscribe registers ch for measurement and replay-ended events.
func (s *Service) Subscribe(id string, ch chan<- events.Event) error {
	return s.bus.Subscribe(id, ch)
}

// Unsubscribe removes a subscriber.
func (s *Service) Unsubscribe(id string) error {
	return s.bus.Unsubscribe(id)
}

// EventStats returns the event bus counters.
func (s *Service) EventStats() events.Stats {
	return s.bus.Stats()
}

// Close stops every worker, best effort, and closes the event bus.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.registry.StopAll(ctx)

	if busErr := s.bus.Close(); busErr != nil && !errors.Is(busErr, events.ErrBusClosed) {
		err = errors.Join(err, busErr)
	}

	return err
}

// OnMeasurement implements worker.Sink.
func (s *Service) OnMeasurement(sourceID string, m *telemetry.Measurement) {
	s.state.Apply(sourceID, m)

	if s.metrics != nil {
		s.metrics.RecordMeasurement(sourceID)
	}

	s.bus.Publish(events.Event{
		Kind:        events.KindMeasurement,
		SourceID:    sourceID,
		Measurement: m,
	})
}

// OnRecordSkipped implements worker.Sink.
func (s *Service) OnRecordSkipped(sourceID string, err error) {
	if s.metrics != nil {
		s.metrics.RecordSkipped(sourceID)
	}

	logger.DebugKV(s.ctx, "Record skipped", "source_id", sourceID, "error", err)
}

// OnReplayEnded implements worker.Sink.
func (s *Service) OnReplayEnded(slot worker.Slot, sourceID string) {
	if s.metrics != nil {
		s.metrics.RecordReplayEnded()
	}

	s.bus.Publish(events.Event{
		Kind:     events.KindReplayEnded,
		SourceID: sourceID,
		Slot:     slot.String(),
	})
}

func (s *Service) checkSlot(slot worker.Slot) error {
	limit := s.opts.MaxLiveSlots
	if slot.Kind == worker.KindReplay {
		limit = s.opts.MaxReplaySlots
	}

	if slot.Index < 1 || slot.Index > limit {
		return fmt.Errorf("%w: %s, want %s-1..%s-%d", ErrInvalidSlot, slot, slot.Kind, slot.Kind, limit)
	}

	return nil
}

// claimLocked fails if slot is running and clears a finished handle out of it.
func (s *Service) claimLocked(ctx context.Context, slot worker.Slot) error {
	h, ok := s.registry.Lookup(slot)
	if !ok {
		return nil
	}

	if h.Running() {
		return fmt.Errorf("%w: %s is running source %s", ErrSlotBusy, slot, h.SourceID)
	}

	if err := s.registry.Stop(ctx, slot); err != nil {
		return err
	}

	s.forgetLocked(h)

	return nil
}

func (s *Service) stop(ctx context.Context, slot worker.Slot) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.registry.Lookup(slot)
	if !ok {
		return nil
	}

	// A worker that outlives ctx keeps its slot and its source.
	if err := s.registry.Stop(ctx, slot); err != nil {
		logger.WarnKV(ctx, "Slot did not stop in time", "slot", slot.String(), "source_id", h.SourceID, "error", err)
		return err
	}

	s.forgetLocked(h)
	s.refreshActive(nil)

	logger.InfoKV(ctx, "Slot stopped", "slot", slot.String(), "source_id", h.SourceID)

	return nil
}

// forgetLocked drops the source of h unless another running slot still feeds it.
func (s *Service) forgetLocked(h *worker.Handle) {
	for _, other := range s.registry.Handles() {
		if other != h && other.SourceID == h.SourceID && other.Running() {
			return
		}
	}

	s.state.Forget(h.SourceID)
}

func (s *Service) onWorkerExit(h *worker.Handle) {
	s.refreshActive(h)
}

// refreshActive publishes running worker counts. exiting is a handle whose
// goroutine is returning but not yet marked done.
func (s *Service) refreshActive(exiting *worker.Handle) {
	if s.metrics == nil {
		return
	}

	counts := map[worker.Kind]int{worker.KindLive: 0, worker.KindReplay: 0}

	for _, h := range s.registry.Handles() {
		if h != exiting && h.Running() {
			counts[h.Slot.Kind]++
		}
	}

	for kind, n := range counts {
		s.metrics.SetActiveWorkers(string(kind), n)
	}
}
