package aggregate

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

// MetricsRecorder receives gauge updates after each mutation.
type MetricsRecorder interface {
	SetAnchorCount(n int)
	SetSourceCount(n int)
}

// SourceState is what the aggregate knows about one source.
type SourceState struct {
	// SourceID identifies the source, e.g. "COM4" for a live port or "csv-4" for a replay.
	SourceID string
	// Color is the display color assigned at registration.
	Color string
	// Latest is the most recent measurement, nil until the first one arrives.
	Latest *telemetry.Measurement
}

// Snapshot is a consistent copy of the aggregate.
type Snapshot struct {
	// Generation increases on every mutation.
	Generation uint64
	// Anchors are sorted by AnchorID.
	Anchors []telemetry.AnchorLocation
	// Sources are sorted by SourceID.
	Sources []SourceState
}

// State is the aggregate view. The zero value is not usable, call New.
type State struct {
	mu sync.RWMutex

	anchors    map[string]telemetry.AnchorLocation
	sources    map[string]*SourceState
	generation uint64

	palette  []string
	next     int
	recorder MetricsRecorder
}

// Option configures a State.
type Option func(*State)

// WithPalette replaces the color cycle handed to sources without an explicit color.
func WithPalette(colors []string) Option {
	return func(s *State) {
		if len(colors) > 0 {
			s.palette = slices.Clone(colors)
		}
	}
}

// WithMetricsRecorder reports anchor and source counts to r.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *State) {
		s.recorder = r
	}
}

// DefaultPalette is the color cycle used when none is configured.
//
//nolint:gochecknoglobals // Read-only, cloned by New.
var DefaultPalette = []string{"lime", "cyan", "yellow", "orange", "mediumpurple", "dodgerblue", "tomato"}

// New creates an empty aggregate.
func New(opts ...Option) *State {
	s := &State{
		anchors: make(map[string]telemetry.AnchorLocation),
		sources: make(map[string]*SourceState),
		palette: slices.Clone(DefaultPalette),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register makes sourceID known and returns its color. An explicit color wins,
// otherwise a known source keeps its color and a new one takes the next
// palette entry.
func (s *State) Register(sourceID, color string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.sourceLocked(sourceID)
	if color = strings.TrimSpace(color); color != "" {
		src.Color = color
	}

	s.changedLocked()

	return src.Color
}

// Forget drops a source and its latest fix. Anchors stay.
func (s *State) Forget(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[sourceID]; !ok {
		return
	}

	delete(s.sources, sourceID)
	s.changedLocked()
}

// Apply folds m into the aggregate: anchor positions are upserted by id with
// last write wins, and m becomes the latest fix of sourceID.
func (s *State) Apply(sourceID string, m *telemetry.Measurement) {
	if m == nil {
		return
	}

	m = m.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range m.Anchors {
		s.anchors[a.AnchorID] = a.Location()
	}

	s.sourceLocked(sourceID).Latest = m
	s.changedLocked()
}

// SeedAnchors loads known anchor positions, e.g. from a saved snapshot.
func (s *State) SeedAnchors(anchors []telemetry.AnchorLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range anchors {
		s.anchors[a.AnchorID] = a
	}

	s.changedLocked()
}

// Reset clears anchors, latest fixes and color assignments.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.anchors)
	clear(s.sources)
	s.next = 0
	s.changedLocked()
}

// Snapshot returns a deep copy taken under the read lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Generation: s.generation,
		Anchors:    make([]telemetry.AnchorLocation, 0, len(s.anchors)),
		Sources:    make([]SourceState, 0, len(s.sources)),
	}

	for _, id := range slices.Sorted(maps.Keys(s.anchors)) {
		snap.Anchors = append(snap.Anchors, s.anchors[id])
	}

	for _, id := range slices.Sorted(maps.Keys(s.sources)) {
		src := s.sources[id]
		snap.Sources = append(snap.Sources, SourceState{
			SourceID: src.SourceID,
			Color:    src.Color,
			Latest:   src.Latest.Clone(),
		})
	}

	return snap
}

// Generation returns the mutation counter without copying the state.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// Latest returns a copy of the latest measurement of sourceID.
func (s *State) Latest(sourceID string) (*telemetry.Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[sourceID]
	if !ok || src.Latest == nil {
		return nil, false
	}

	return src.Latest.Clone(), true
}

// Color returns the color registered for sourceID.
func (s *State) Color(sourceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[sourceID]
	if !ok {
		return "", false
	}

	return src.Color, true
}

// sourceLocked returns the entry of sourceID, creating it with the next
// palette color. Callers hold mu.
func (s *State) sourceLocked(sourceID string) *SourceState {
	if src, ok := s.sources[sourceID]; ok {
		return src
	}

	src := &SourceState{
		SourceID: sourceID,
		Color:    s.palette[s.next%len(s.palette)],
	}
	s.next++
	s.sources[sourceID] = src

	return src
}

// changedLocked bumps the generation and reports gauges. Callers hold mu.
func (s *State) changedLocked() {
	s.generation++

	if s.recorder != nil {
		s.recorder.SetAnchorCount(len(s.anchors))
		s.recorder.SetSourceCount(len(s.sources))
	}
}
