package probez

import (
	"sync"
	"sync/atomic"
)

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{buf: make([]T, capacity)}
}

// push appends v and reports whether an older entry was evicted.
func (r *ring[T]) push(v T) bool {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return true
}

func (r *ring[T]) items() []T {
	if r.size == 0 {
		return nil
	}
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.size = 0, 0
}

// UnscopedLog keeps events and samples produced while no span was open.
// Each log holds at most capacity entries; the oldest are evicted first.
// Safe for concurrent use.
type UnscopedLog struct {
	events  ring[Event]
	samples ring[Sample]
	evicted atomic.Uint64
	mu      sync.Mutex
}

// NewUnscopedLog creates a log bounded to capacity events and capacity samples.
func NewUnscopedLog(capacity int) *UnscopedLog {
	if capacity <= 0 {
		capacity = DefaultUnscopedCapacity
	}
	return &UnscopedLog{
		events:  newRing[Event](capacity),
		samples: newRing[Sample](capacity),
	}
}

// AddEvent appends an event.
func (l *UnscopedLog) AddEvent(ev Event) {
	l.mu.Lock()
	evicted := l.events.push(ev)
	l.mu.Unlock()
	if evicted {
		l.evicted.Add(1)
	}
}

// AddSample appends a sample.
func (l *UnscopedLog) AddSample(s Sample) {
	l.mu.Lock()
	evicted := l.samples.push(s)
	l.mu.Unlock()
	if evicted {
		l.evicted.Add(1)
	}
}

// Events returns the retained events, oldest first.
func (l *UnscopedLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events.items()
}

// Samples returns the retained samples, oldest first.
func (l *UnscopedLog) Samples() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.samples.items()
}

// Drain returns the retained entries and clears the log.
func (l *UnscopedLog) Drain() ([]Event, []Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events, samples := l.events.items(), l.samples.items()
	l.events.reset()
	l.samples.reset()
	return events, samples
}

// Len returns the number of retained entries.
func (l *UnscopedLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events.size + l.samples.size
}

// Evicted returns how many entries were overwritten since creation.
func (l *UnscopedLog) Evicted() uint64 {
	return l.evicted.Load()
}
