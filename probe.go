package probez

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Probe is the collector facade the instrumented client calls into.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Probe struct {
	opts          Options
	sinks         []sinkEntry
	workers       *workerPool
	spanIDPool    *IDPool
	clock         clockz.Clock
	logger        *zap.Logger
	metrics       *metrics
	unscoped      *UnscopedLog
	fallback      *ExecContext
	contexts      sync.Map // uint64 -> *ExecContext
	sinksLock     sync.RWMutex
	idPoolOnce    sync.Once
	nextSinkID    atomic.Uint64
	nextContextID atomic.Uint64
	emitted       atomic.Uint64
	droppedTraces atomic.Uint64
	protocolErrs  atomic.Uint64
	closing       atomic.Bool // Set first by Close; Attach checks it.
	closed        atomic.Bool
}

// New creates a probe. Options apply on top of DefaultOptions.
func New(opts ...Option) *Probe {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()

	p := &Probe{
		opts:     o,
		clock:    o.Clock,
		logger:   o.Logger,
		metrics:  newMetrics(o.Registerer, o.Namespace),
		unscoped: NewUnscopedLog(o.UnscopedCapacity),
	}
	p.workers = newWorkerPool(o.Workers, o.QueueSize)
	p.fallback = p.newContext(DefaultContextName)
	return p
}

// Options returns the effective options.
func (p *Probe) Options() Options {
	return p.opts
}

// ensureIDPools initializes the span ID pool if not already created.
func (p *Probe) ensureIDPools() {
	p.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		p.spanIDPool = NewIDPool(runtime.NumCPU()*100, p.newSpanID)
	})
}

func (p *Probe) newSpanID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to time-based ID if crypto/rand fails.
		return strconv.FormatInt(p.clock.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(bytes)
}

func (p *Probe) generateSpanID() string {
	p.ensureIDPools()
	if p.spanIDPool == nil {
		// Close ran before the first span.
		return p.newSpanID()
	}
	return p.spanIDPool.Get()
}

func (p *Probe) generateTraceID() string {
	return uuid.NewString()
}

func (p *Probe) newContext(name string) *ExecContext {
	id := p.nextContextID.Add(1)
	if name == "" {
		name = "ctx-" + strconv.FormatUint(id, 10)
	}
	return &ExecContext{
		probe: p,
		name:  name,
		id:    id,
		torn:  make(chan struct{}),
	}
}

// Attach creates an execution context and binds it to the returned context.
// Cancelling ctx tears the execution context down (see ExecContext.Close).
// An empty name is replaced by a generated one.
func (p *Probe) Attach(ctx context.Context, name string) (context.Context, *ExecContext) {
	if ctx == nil {
		ctx = context.Background()
	}
	ec := p.newContext(name)
	if p.closing.Load() {
		ec.closed = true
		close(ec.torn)
		return context.WithValue(ctx, bundleKey, ec), ec
	}

	p.contexts.Store(ec.id, ec)
	p.metrics.contexts.Inc()
	// Close may have ranged over contexts before the Store above.
	if p.closing.Load() {
		ec.Close()
		return context.WithValue(ctx, bundleKey, ec), ec
	}
	if ctx.Done() != nil {
		// Held so an immediate teardown sees stop.
		ec.mu.Lock()
		if !ec.closed {
			ec.stop = context.AfterFunc(ctx, ec.Close)
		}
		ec.mu.Unlock()
	}
	return context.WithValue(ctx, bundleKey, ec), ec
}

// Detach tears down the execution context attached to ctx, if any.
func (p *Probe) Detach(ctx context.Context) {
	if ec := FromContext(ctx); ec != nil && ec.probe == p {
		ec.Close()
	}
}

// Default returns the execution context used for calls without one.
func (p *Probe) Default() *ExecContext {
	return p.fallback
}

// resolve picks the calling execution context.
func (p *Probe) resolve(ctx context.Context) *ExecContext {
	if ec := FromContext(ctx); ec != nil && ec.probe == p {
		return ec
	}
	return p.fallback
}

// Enter opens a span on the calling execution context.
func (p *Probe) Enter(ctx context.Context, name Key) error {
	return p.resolve(ctx).Enter(name)
}

// Exit closes the top span on the calling execution context.
func (p *Probe) Exit(ctx context.Context, name Key) error {
	return p.resolve(ctx).Exit(name)
}

// Trigger records an event under the current span.
func (p *Probe) Trigger(ctx context.Context, name Key) {
	p.resolve(ctx).Trigger(name)
}

// Record samples a value against its declared unit and inclusive bounds.
func (p *Probe) Record(ctx context.Context, unit string, minimum, maximum, value float64) error {
	return p.resolve(ctx).record(p.siteName(1), Bounds{Unit: unit, Min: minimum, Max: maximum}, value)
}

// RecordVar is Record with an explicit variable name.
func (p *Probe) RecordVar(ctx context.Context, name, unit string, minimum, maximum, value float64) error {
	return p.resolve(ctx).record(name, Bounds{Unit: unit, Min: minimum, Max: maximum}, value)
}

// RecordWith samples value against a reusable annotation.
func (p *Probe) RecordWith(ctx context.Context, name string, b Bounds, value float64) error {
	return p.resolve(ctx).record(name, b, value)
}

// siteName labels the caller skip frames above the calling function.
func (p *Probe) siteName(skip int) string {
	if !p.opts.CallSiteNames {
		return ""
	}
	return callSite(skip + 1)
}

// Unscoped returns the log of events and samples recorded outside any span.
func (p *Probe) Unscoped() *UnscopedLog {
	return p.unscoped
}

// DrainUnscoped returns the unscoped events and samples and clears the log.
func (p *Probe) DrainUnscoped() ([]Event, []Sample) {
	return p.unscoped.Drain()
}

// report sends a protocol error to the diagnostic stream and returns it.
func (p *Probe) report(err *ProtocolError) error {
	kind := errorKind(err)
	p.protocolErrs.Add(1)
	p.metrics.errors.WithLabelValues(kind).Inc()
	p.logger.Warn("instrumentation protocol error",
		zap.String("kind", kind),
		zap.String("context", err.Context),
		zap.String("span", err.Span),
		zap.String("detail", err.Detail),
	)
	if p.opts.ErrorHook != nil {
		p.opts.ErrorHook(err)
	}
	return err
}

// Stats is a point-in-time view of the probe's counters.
type Stats struct {
	TracesEmitted   uint64
	DroppedTraces   uint64
	ProtocolErrors  uint64
	UnscopedEvicted uint64
	LiveContexts    int
}

// Stats returns the current counters.
func (p *Probe) Stats() Stats {
	live := 0
	p.contexts.Range(func(_, _ any) bool {
		live++
		return true
	})
	return Stats{
		TracesEmitted:   p.emitted.Load(),
		DroppedTraces:   p.droppedTraces.Load(),
		ProtocolErrors:  p.protocolErrs.Load(),
		UnscopedEvicted: p.unscoped.Evicted(),
		LiveContexts:    live,
	}
}

// Close tears down every execution context, delivers the resulting traces,
// and stops background goroutines. Safe to call more than once.
func (p *Probe) Close() {
	if !p.closing.CompareAndSwap(false, true) {
		return
	}

	p.contexts.Range(func(_, v any) bool {
		v.(*ExecContext).Close()
		return true
	})
	p.fallback.Close()
	p.closed.Store(true)

	// Wait for in-flight async deliveries.
	p.workers.shutdown()

	p.sinksLock.Lock()
	p.sinks = nil
	p.sinksLock.Unlock()

	// Pairs with ensureIDPools so the pool field is safe to read.
	p.idPoolOnce.Do(func() {})
	if p.spanIDPool != nil {
		p.spanIDPool.Close()
	}
	_ = p.logger.Sync()
}
