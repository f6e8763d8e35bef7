package probez

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is a Sink that buffers completed traces for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	traces       []Trace
	tracesCh     chan Trace
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a collector whose hand-off channel holds bufferSize traces.
func NewCollector(bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	c := &Collector{
		traces:   make([]Trace, 0, 8),
		tracesCh: make(chan Trace, bufferSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.start()
	return c
}

// start runs the collector's main loop, receiving traces from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining traces before shutdown.
			for {
				select {
				case t := <-c.tracesCh:
					c.buffer(t)
				default:
					return
				}
			}
		case t := <-c.tracesCh:
			c.buffer(t)
		}
	}
}

// Close stops the collector. Buffered traces can still be exported.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Accept implements Sink. If the hand-off channel is full the trace is
// dropped and counted; in sync mode it is buffered directly.
func (c *Collector) Accept(trace Trace) {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	t := cloneTrace(trace)
	if c.syncMode.Load() {
		c.buffer(t)
		return
	}

	select {
	case c.tracesCh <- t:
	default:
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(t Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces = append(c.traces, t)
}

// Export returns all buffered traces and clears the buffer.
// The returned slice is owned by the caller.
func (c *Collector) Export() []Trace {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.traces) == 0 {
		return nil
	}

	result := c.traces

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(result) > 256 && len(result) < cap(result)/8 {
		c.traces = make([]Trace, 0, cap(result)/4)
	} else {
		c.traces = make([]Trace, 0, cap(result))
	}

	return result
}

// Count returns the number of buffered traces.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.traces)
}

// DroppedCount returns the number of traces dropped due to backpressure or
// arriving after Close.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears buffered traces and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.traces = c.traces[:0]
	c.droppedCount.Store(0)
}

// cloneTrace deep-copies a trace so sinks sharing it cannot observe each
// other's modifications.
func cloneTrace(t Trace) Trace {
	out := t
	out.Spans = make([]Span, len(t.Spans))
	for i, s := range t.Spans {
		if s.Children != nil {
			s.Children = append([]string(nil), s.Children...)
		}
		if s.Events != nil {
			s.Events = append([]Event(nil), s.Events...)
		}
		if s.Samples != nil {
			s.Samples = append([]Sample(nil), s.Samples...)
		}
		out.Spans[i] = s
	}
	return out
}
