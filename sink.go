package probez

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink consumes completed traces. Each registered sink receives a given
// trace at most once, and deliveries to one sink never overlap, so a Sink
// need not be safe for concurrent use.
type Sink interface {
	Accept(trace Trace)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(trace Trace)

// Accept calls f(trace).
func (f SinkFunc) Accept(trace Trace) {
	f(trace)
}

type sinkEntry struct {
	sink  Sink
	mu    *sync.Mutex // Serializes hand-off to this sink.
	id    uint64
	async bool
}

// AddSink registers a sink fed asynchronously through the worker pool.
// A slow sink never blocks the instrumented client; when the queue is full
// the trace is dropped for that sink and counted.
func (p *Probe) AddSink(sink Sink) uint64 {
	return p.registerSink(sink, true)
}

// AddSyncSink registers a sink called inline by the goroutine that closes
// the root span.
func (p *Probe) AddSyncSink(sink Sink) uint64 {
	return p.registerSink(sink, false)
}

func (p *Probe) registerSink(sink Sink, async bool) uint64 {
	if sink == nil || p.closed.Load() {
		return 0
	}

	id := p.nextSinkID.Add(1)

	p.sinksLock.Lock()
	defer p.sinksLock.Unlock()

	p.sinks = append(p.sinks, sinkEntry{
		id:    id,
		sink:  sink,
		mu:    &sync.Mutex{},
		async: async,
	})

	return id
}

// RemoveSink unregisters a sink by ID.
func (p *Probe) RemoveSink(id uint64) {
	p.sinksLock.Lock()
	defer p.sinksLock.Unlock()

	// Preserve order
	for i, s := range p.sinks {
		if s.id == id {
			copy(p.sinks[i:], p.sinks[i+1:])
			p.sinks = p.sinks[:len(p.sinks)-1]
			return
		}
	}
}

// HasSinks reports whether any sink is registered.
func (p *Probe) HasSinks() bool {
	p.sinksLock.RLock()
	defer p.sinksLock.RUnlock()
	return len(p.sinks) > 0
}

// emit hands a completed trace to every registered sink.
func (p *Probe) emit(trace Trace) {
	p.emitted.Add(1)
	outcome := outcomeComplete
	if trace.Forced {
		outcome = outcomeForced
	}
	p.metrics.traces.WithLabelValues(outcome).Inc()

	if p.closed.Load() {
		p.drop(trace, "probe closed")
		return
	}

	p.sinksLock.RLock()
	if len(p.sinks) == 0 {
		p.sinksLock.RUnlock()
		return
	}
	sinks := make([]sinkEntry, len(p.sinks))
	copy(sinks, p.sinks)
	p.sinksLock.RUnlock()

	for _, s := range sinks {
		if !s.async {
			p.deliver(s, trace)
			continue
		}
		entry := s
		if !p.workers.submit(func() { p.deliver(entry, trace) }) {
			p.drop(trace, "sink queue full")
		}
	}
}

func (p *Probe) drop(trace Trace, reason string) {
	p.droppedTraces.Add(1)
	p.metrics.dropped.Inc()
	p.logger.Warn("trace dropped",
		zap.String("trace_id", trace.ID),
		zap.String("context", trace.Context),
		zap.String("reason", reason),
	)
}

// deliver calls one sink, recovering panics so a faulty sink cannot take
// down the instrumented client.
func (p *Probe) deliver(entry sinkEntry, trace Trace) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.sinkPanics.Inc()
			p.logger.Error("sink panicked",
				zap.Uint64("sink_id", entry.id),
				zap.String("trace_id", trace.ID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	entry.sink.Accept(trace)
}

// LogSink writes a one-line summary of each trace to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

// Accept logs the trace summary.
func (s LogSink) Accept(trace Trace) {
	if s.Logger == nil {
		return
	}
	root := trace.Root()
	s.Logger.Info("trace completed",
		zap.String("trace_id", trace.ID),
		zap.String("context", trace.Context),
		zap.String("root", root.Name),
		zap.Int("spans", len(trace.Spans)),
		zap.Int("depth", trace.MaxDepth()),
		zap.Int("events", len(trace.Events())),
		zap.Int("samples", len(trace.Samples())),
		zap.Duration("duration", root.Duration),
		zap.Bool("forced", trace.Forced),
	)
}

// workerPool manages a fixed number of workers for asynchronous sinks.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	workers int
	tasks   chan func()
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex // Orders submit against shutdown.
	stopped atomic.Bool
}

// newWorkerPool starts workers goroutines. With no workers every task
// gets its own goroutine, still tracked so shutdown waits for it.
func newWorkerPool(workers, queueSize int) *workerPool {
	w := &workerPool{
		workers: workers,
		stop:    make(chan struct{}),
	}
	if workers <= 0 {
		return w
	}
	w.tasks = make(chan func(), queueSize)
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}
	return w
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Drain queued deliveries before exiting.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit queues a task without blocking. Returns false if the queue is
// full or the pool has shut down.
func (w *workerPool) submit(task func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped.Load() {
		return false
	}
	if w.workers <= 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			task()
		}()
		return true
	}
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

func (w *workerPool) shutdown() {
	w.mu.Lock()
	if w.stopped.Swap(true) {
		w.mu.Unlock()
		return
	}
	close(w.stop)
	w.mu.Unlock()
	w.wg.Wait()
}
