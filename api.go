// Package probez collects spans, events and bounded samples emitted by
// instrumented programs and assembles them into immutable traces.
//
// An instrumented client talks to a Probe through four calls:
//
//	probe := probez.New()
//	defer probe.Close()
//
//	probe.Enter(ctx, "main")
//	probe.Record(ctx, "ms", 0, 1000, float64(elapsed))
//	probe.Trigger(ctx, "main_event")
//	probe.Exit(ctx, "main")
//
// Core Components:
//   - Probe: the facade. Resolves the execution context and forwards calls.
//   - ExecContext: per-execution-context span stack.
//   - Trace: the frozen root span plus its whole subtree.
//   - Sink: receives every completed trace exactly once.
//   - Collector: a buffering Sink for batch export.
//
// Execution Contexts:
//
// Each goroutine that produces spans should attach its own execution context
// so spans from concurrent work never interleave on one stack:
//
//	ctx, ec := probe.Attach(ctx, "worker-1")
//	defer ec.Close()
//
// Calls made with a context that carries no execution context go to the
// probe's default context. Cancelling a context passed to Attach tears the
// execution context down: every span still open is force-closed, flagged
// Forced, and emitted as a trace.
//
// Errors:
//
// Malformed instrumentation (mismatched or unbalanced exits, runaway
// recursion, inverted bounds) is reported, never fatal. Each error is
// returned to the caller, logged, counted and passed to the error hook,
// and the stack keeps operating.
package probez

// Key represents a span or event name.
type Key = string

// AnonymousSpan replaces empty span names.
const AnonymousSpan Key = "<anonymous>"

// DefaultContextName names the execution context used when a call carries
// no attached context.
const DefaultContextName = "main"
