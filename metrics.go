package probez

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	scopeScoped   = "scoped"
	scopeUnscoped = "unscoped"

	outcomeComplete = "complete"
	outcomeForced   = "forced"
)

type metrics struct {
	spans      prometheus.Counter
	traces     *prometheus.CounterVec
	dropped    prometheus.Counter
	events     *prometheus.CounterVec
	samples    *prometheus.CounterVec
	errors     *prometheus.CounterVec
	sinkPanics prometheus.Counter
	contexts   prometheus.Gauge
}

// register adds c to reg. When an identical collector is already
// registered, probes sharing the registry share that collector instead.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	return &metrics{
		spans: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_total",
			Help:      "Spans opened across all execution contexts.",
		})),
		traces: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_total",
			Help:      "Traces assembled, by outcome.",
		}, []string{"outcome"})),
		dropped: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_dropped_total",
			Help:      "Trace deliveries dropped because the sink queue was full or the probe was closed.",
		})),
		events: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events triggered, by scope.",
		}, []string{"scope"})),
		samples: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples recorded, by verdict.",
		}, []string{"verdict"})),
		errors: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Instrumentation protocol errors, by kind.",
		}, []string{"kind"})),
		sinkPanics: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_panics_total",
			Help:      "Panics recovered from sinks.",
		})),
		contexts: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_contexts",
			Help:      "Attached execution contexts not yet torn down.",
		})),
	}
}
