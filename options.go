package probez

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Defaults used by New when no option overrides them.
const (
	DefaultMaxDepth         = 4096
	DefaultUnscopedCapacity = 1024
	DefaultWorkers          = 4
	DefaultQueueSize        = 256
	DefaultNamespace        = "probez"
)

// Options configures a Probe.
//
//nolint:govet // Field order mirrors the configuration file
type Options struct {
	// Clock supplies every timestamp. Inject a fake clock in tests.
	Clock clockz.Clock

	// Logger receives the diagnostic stream.
	Logger *zap.Logger

	// Registerer receives the probe's metrics. A private registry is
	// used when nil.
	Registerer prometheus.Registerer

	// Namespace prefixes metric names.
	Namespace string

	// ErrorHook is called with every protocol error after it is logged.
	ErrorHook func(err error)

	// MaxDepth limits open spans per execution context; <= 0 disables it.
	MaxDepth int

	// UnscopedCapacity bounds the unscoped event and sample logs.
	UnscopedCapacity int

	// Workers and QueueSize size the pool that feeds asynchronous sinks.
	// With Workers <= 0 each asynchronous delivery gets its own goroutine.
	Workers   int
	QueueSize int

	// CallSiteNames labels unnamed samples with the caller's file:line.
	CallSiteNames bool
}

// DefaultOptions returns the options New starts from.
func DefaultOptions() Options {
	return Options{
		Clock:            clockz.RealClock,
		Logger:           zap.NewNop(),
		Namespace:        DefaultNamespace,
		MaxDepth:         DefaultMaxDepth,
		UnscopedCapacity: DefaultUnscopedCapacity,
		Workers:          DefaultWorkers,
		QueueSize:        DefaultQueueSize,
		CallSiteNames:    true,
	}
}

// Option mutates Options.
type Option func(*Options)

// WithOptions replaces every option at once.
func WithOptions(o Options) Option {
	return func(dst *Options) { *dst = o }
}

// WithClock injects the clock. Enables deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(o *Options) { o.Clock = clock }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithRegisterer registers metrics with reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) { o.Registerer = reg }
}

// WithNamespace prefixes metric names.
func WithNamespace(namespace string) Option {
	return func(o *Options) { o.Namespace = namespace }
}

// WithErrorHook observes every protocol error.
func WithErrorHook(hook func(err error)) Option {
	return func(o *Options) { o.ErrorHook = hook }
}

// WithMaxDepth sets the per-context span depth limit.
func WithMaxDepth(depth int) Option {
	return func(o *Options) { o.MaxDepth = depth }
}

// WithUnscopedCapacity bounds the unscoped logs.
func WithUnscopedCapacity(capacity int) Option {
	return func(o *Options) { o.UnscopedCapacity = capacity }
}

// WithWorkerPool sizes the asynchronous sink pool.
func WithWorkerPool(workers, queueSize int) Option {
	return func(o *Options) {
		o.Workers = workers
		o.QueueSize = queueSize
	}
}

// WithCallSiteNames toggles file:line labels for unnamed samples.
func WithCallSiteNames(enabled bool) Option {
	return func(o *Options) { o.CallSiteNames = enabled }
}

func (o *Options) normalize() {
	if o.Clock == nil {
		o.Clock = clockz.RealClock
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.NewRegistry()
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.UnscopedCapacity <= 0 {
		o.UnscopedCapacity = DefaultUnscopedCapacity
	}
	if o.Workers > 0 && o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
}
