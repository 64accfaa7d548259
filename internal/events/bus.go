package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

// Kind tells what happened.
type Kind int

const (
	// KindMeasurement carries a decoded measurement.
	KindMeasurement Kind = iota + 1
	// KindReplayEnded marks the end of a replay file.
	KindReplayEnded
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindMeasurement:
		return "measurement"
	case KindReplayEnded:
		return "replay_ended"
	default:
		return "unknown"
	}
}

// Event is one notification delivered to subscribers.
type Event struct {
	// Kind selects which of the fields below are set.
	Kind Kind
	// SourceID is the source the event belongs to.
	SourceID string
	// Slot is the slot label, e.g. "csv-2". Set for KindReplayEnded.
	Slot string
	// Measurement is set for KindMeasurement. Subscribers must not modify it.
	Measurement *telemetry.Measurement
	// At is when the event was published.
	At time.Time
}

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")
	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")
	// ErrBusClosed is returned by Subscribe and Unsubscribe after Close.
	ErrBusClosed = errors.New("bus is closed")

	errNilChannel = errors.New("subscriber channel cannot be nil")
)

// Stats is a point-in-time copy of the bus counters.
type Stats struct {
	Published   uint64
	Sent        uint64
	Dropped     uint64
	Subscribers map[string]SubscriberStats
}

// SubscriberStats are the counters of one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	ch      chan<- Event
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus is a non-blocking event fan-out.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	published atomic.Uint64
	now       func() time.Time
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
		now:         time.Now,
	}
}

// Subscribe registers ch under id.
func (b *Bus) Subscribe(id string, ch chan<- Event) error {
	if ch == nil {
		return errNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber{ch: ch}

	return nil
}

// Unsubscribe removes a subscriber. Its channel is left open.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)

	return nil
}

// Publish delivers e to every subscriber with room in its channel.
// Events published after Close are discarded.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- e:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subscribers)),
	}

	for id, sub := range b.subscribers {
		s := SubscriberStats{
			Sent:    sub.sent.Load(),
			Dropped: sub.dropped.Load(),
		}
		stats.Sent += s.Sent
		stats.Dropped += s.Dropped
		stats.Subscribers[id] = s
	}

	return stats
}

// Close drops every subscriber and rejects further subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	b.closed = true
	clear(b.subscribers)

	return nil
}
