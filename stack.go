package probez

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "probez"
)

// ExecContext is the span stack of one execution context.
// Spans never cross execution contexts. The methods are safe to call from
// any goroutine, but a stack only makes sense when one goroutine (or one
// logical task) drives it.
//
//nolint:govet // Field order optimized for functionality over memory
type ExecContext struct {
	probe    *Probe
	name     string
	stack    []*node
	stop     func() bool // Cancels the context.AfterFunc teardown.
	id       uint64
	overflow int // Enters refused by the depth limit and not yet exited.
	torn     chan struct{} // Closed once teardown has delivered its trace.
	mu       sync.Mutex
	closed   bool
}

// FromContext returns the execution context attached to ctx, or nil.
func FromContext(ctx context.Context) *ExecContext {
	if ctx == nil {
		return nil
	}
	if ec, ok := ctx.Value(bundleKey).(*ExecContext); ok {
		return ec
	}
	return nil
}

// Name returns the execution context name.
func (ec *ExecContext) Name() string {
	return ec.name
}

// Depth returns the number of open spans.
func (ec *ExecContext) Depth() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.stack)
}

// Closed reports whether the context has been torn down.
func (ec *ExecContext) Closed() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.closed
}

// Enter opens a span. An empty name becomes AnonymousSpan.
// Beyond the configured depth limit the span is refused with
// ErrSpanDepthExceeded; its matching Exit is then absorbed.
func (ec *ExecContext) Enter(name Key) error {
	if name == "" {
		name = AnonymousSpan
	}
	p := ec.probe
	now := p.clock.Now()

	ec.mu.Lock()
	if ec.closed {
		ec.mu.Unlock()
		return p.report(&ProtocolError{Err: ErrContextClosed, Context: ec.name, Span: name, Detail: "enter"})
	}
	if limit := p.opts.MaxDepth; limit > 0 && len(ec.stack) >= limit {
		ec.overflow++
		ec.mu.Unlock()
		return p.report(&ProtocolError{
			Err:     ErrSpanDepthExceeded,
			Context: ec.name,
			Span:    name,
			Detail:  fmt.Sprintf("limit %d", limit),
		})
	}

	n := &node{span: Span{
		ID:        p.generateSpanID(),
		Name:      name,
		StartTime: now,
		Depth:     len(ec.stack),
	}}
	if len(ec.stack) > 0 {
		parent := ec.stack[len(ec.stack)-1]
		n.span.ParentID = parent.span.ID
		parent.children = append(parent.children, n)
	}
	ec.stack = append(ec.stack, n)
	ec.mu.Unlock()

	p.metrics.spans.Inc()
	return nil
}

// Exit closes the top span. The span is popped even when its name does not
// match, so the stack stays in step with the client.
func (ec *ExecContext) Exit(name Key) error {
	if name == "" {
		name = AnonymousSpan
	}
	p := ec.probe
	now := p.clock.Now()

	ec.mu.Lock()
	if ec.closed {
		ec.mu.Unlock()
		return p.report(&ProtocolError{Err: ErrContextClosed, Context: ec.name, Span: name, Detail: "exit"})
	}
	if ec.overflow > 0 {
		ec.overflow--
		ec.mu.Unlock()
		return nil
	}
	if len(ec.stack) == 0 {
		ec.mu.Unlock()
		return p.report(&ProtocolError{Err: ErrUnbalancedSpan, Context: ec.name, Span: name})
	}

	top := ec.stack[len(ec.stack)-1]
	ec.stack[len(ec.stack)-1] = nil
	ec.stack = ec.stack[:len(ec.stack)-1]
	top.finish(now, false)
	opened := top.span.Name

	var trace *Trace
	if len(ec.stack) == 0 {
		t := assemble(p.generateTraceID(), ec.name, top)
		trace = &t
	}
	ec.mu.Unlock()

	if trace != nil {
		p.emit(*trace)
	}
	if opened != name {
		return p.report(&ProtocolError{
			Err:     ErrMismatchedSpan,
			Context: ec.name,
			Span:    name,
			Detail:  fmt.Sprintf("closed open span %q", opened),
		})
	}
	return nil
}

// Trigger records an event under the top span. Outside any span the event
// goes to the probe's unscoped log.
func (ec *ExecContext) Trigger(name Key) {
	p := ec.probe
	ev := Event{
		Name:      name,
		Timestamp: p.clock.Now(),
		Context:   ec.name,
	}

	ec.mu.Lock()
	if !ec.closed && len(ec.stack) > 0 {
		top := ec.stack[len(ec.stack)-1]
		ev.SpanID = top.span.ID
		top.span.Events = append(top.span.Events, ev)
		ec.mu.Unlock()
		p.metrics.events.WithLabelValues(scopeScoped).Inc()
		return
	}
	ec.mu.Unlock()

	ev.Unscoped = true
	p.unscoped.AddEvent(ev)
	p.metrics.events.WithLabelValues(scopeUnscoped).Inc()
}

// Record samples a value against declared bounds. The sample is named after
// the call site when call-site naming is enabled.
func (ec *ExecContext) Record(unit string, minimum, maximum, value float64) error {
	return ec.record(ec.probe.siteName(1), Bounds{Unit: unit, Min: minimum, Max: maximum}, value)
}

// RecordVar samples a named variable against declared bounds.
func (ec *ExecContext) RecordVar(name, unit string, minimum, maximum, value float64) error {
	return ec.record(name, Bounds{Unit: unit, Min: minimum, Max: maximum}, value)
}

func (ec *ExecContext) record(name string, b Bounds, value float64) error {
	p := ec.probe
	s := Sample{
		Name:      name,
		Unit:      b.Unit,
		Min:       b.Min,
		Max:       b.Max,
		Value:     value,
		Verdict:   b.Check(value),
		Timestamp: p.clock.Now(),
		Context:   ec.name,
	}

	ec.mu.Lock()
	if !ec.closed && len(ec.stack) > 0 {
		top := ec.stack[len(ec.stack)-1]
		s.SpanID = top.span.ID
		top.span.Samples = append(top.span.Samples, s)
		ec.mu.Unlock()
	} else {
		ec.mu.Unlock()
		s.Unscoped = true
		p.unscoped.AddSample(s)
	}
	p.metrics.samples.WithLabelValues(s.Verdict.String()).Inc()

	if s.Verdict == InvalidBounds {
		return p.report(&ProtocolError{
			Err:     ErrInvalidBounds,
			Context: ec.name,
			Span:    name,
			Detail:  fmt.Sprintf("min %v > max %v", b.Min, b.Max),
		})
	}
	return nil
}

// Close tears the context down. Open spans are closed at teardown time,
// flagged Forced, and emitted as one trace. Safe to call more than once;
// every call returns after the trace has been handed to the sinks.
func (ec *ExecContext) Close() {
	p := ec.probe

	ec.mu.Lock()
	if ec.closed {
		ec.mu.Unlock()
		<-ec.torn
		return
	}
	ec.closed = true
	stop := ec.stop
	ec.stop = nil
	ec.overflow = 0

	var trace *Trace
	open := len(ec.stack)
	if open > 0 {
		now := p.clock.Now()
		for i := open - 1; i >= 0; i-- {
			ec.stack[i].finish(now, true)
		}
		t := assemble(p.generateTraceID(), ec.name, ec.stack[0])
		trace = &t
		ec.stack = nil
	}
	ec.mu.Unlock()

	if stop != nil {
		stop()
	}

	if trace != nil {
		p.logger.Info("execution context torn down with open spans",
			zap.String("context", ec.name),
			zap.Int("open_spans", open),
			zap.String("trace_id", trace.ID),
		)
		p.emit(*trace)
	}

	// Deregister last so Probe.Close still finds contexts mid-teardown.
	if _, loaded := p.contexts.LoadAndDelete(ec.id); loaded {
		p.metrics.contexts.Dec()
	}
	close(ec.torn)
}
