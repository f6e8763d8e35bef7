package integration

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/probez"
)

// TraceRecorder wraps a real collector with test utilities.
// Exported traces accumulate so assertions can look back at them.
//
//nolint:govet // Field alignment optimized for test helper readability
type TraceRecorder struct {
	*probez.Collector
	t        *testing.T
	exported []probez.Trace
	mu       sync.Mutex
}

// NewTraceRecorder creates a synchronous collector registered as a sync sink
// on p. It is closed with the test.
func NewTraceRecorder(t *testing.T, p *probez.Probe) *TraceRecorder {
	t.Helper()
	collector := probez.NewCollector(64)
	collector.SetSyncMode(true)
	p.AddSyncSink(collector)
	t.Cleanup(collector.Close)
	return &TraceRecorder{Collector: collector, t: t}
}

// All returns every trace seen so far.
func (r *TraceRecorder) All() []probez.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exported = append(r.exported, r.Collector.Export()...)
	all := make([]probez.Trace, len(r.exported))
	copy(all, r.exported)
	return all
}

// WaitForTraces waits until at least n traces have been seen.
func (r *TraceRecorder) WaitForTraces(n int, timeout time.Duration) []probez.Trace {
	r.t.Helper()
	var all []probez.Trace
	require.Eventually(r.t, func() bool {
		all = r.All()
		return len(all) >= n
	}, timeout, 5*time.Millisecond, "waiting for %d traces", n)
	return all
}

// ByContext indexes traces by execution context name.
func (r *TraceRecorder) ByContext() map[string][]probez.Trace {
	out := map[string][]probez.Trace{}
	for _, trace := range r.All() {
		out[trace.Context] = append(out[trace.Context], trace)
	}
	return out
}

// Shape renders the span tree as "root(child(grandchild),child)".
func Shape(trace probez.Trace) string {
	var b strings.Builder
	var walk func(n *probez.TreeNode)
	walk = func(n *probez.TreeNode) {
		b.WriteString(n.Span.Name)
		if len(n.Children) == 0 {
			return
		}
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			walk(c)
		}
		b.WriteByte(')')
	}
	if root := trace.Tree(); root != nil {
		walk(root)
	}
	return b.String()
}

// RequireWellFormed checks the structural guarantees every trace carries:
// one root, parents precede children, timings ordered.
func RequireWellFormed(t *testing.T, trace probez.Trace) {
	t.Helper()
	require.NotEmpty(t, trace.Spans, "trace %s has no spans", trace.ID)
	require.Empty(t, trace.Spans[0].ParentID, "first span must be the root")

	seen := map[string]probez.Span{}
	for i, s := range trace.Spans {
		if i > 0 {
			parent, ok := seen[s.ParentID]
			require.True(t, ok, "span %s appears before its parent %s", s.ID, s.ParentID)
			require.Equal(t, parent.Depth+1, s.Depth, "span %s depth", s.ID)
			require.False(t, s.StartTime.Before(parent.StartTime), "child %s starts before parent", s.ID)
		}
		require.False(t, s.EndTime.Before(s.StartTime), "span %s ends before it starts", s.ID)
		for _, ev := range s.Events {
			require.Equal(t, s.ID, ev.SpanID)
		}
		for _, sm := range s.Samples {
			require.Equal(t, s.ID, sm.SpanID)
		}
		seen[s.ID] = s
	}
}
