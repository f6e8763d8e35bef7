package probez

import (
	"time"
)

// Span represents one enter/exit pair within a trace.
// Spans handed to sinks are copies; do not modify them.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
	ID        string        `json:"span_id"`
	ParentID  string        `json:"parent_id,omitempty"`
	Name      Key           `json:"name"`
	Children  []string      `json:"children,omitempty"`
	Events    []Event       `json:"events,omitempty"`
	Samples   []Sample      `json:"samples,omitempty"`
	Depth     int           `json:"depth"`
	Forced    bool          `json:"forced,omitempty"`
}

// Event is a discrete, timestamped occurrence attributed to the span that
// was on top of the stack when it was triggered.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Name      Key       `json:"name"`
	SpanID    string    `json:"span_id,omitempty"`
	Context   string    `json:"context"`
	Unscoped  bool      `json:"unscoped,omitempty"`
}

// node is an open or closed span still owned by an execution context.
type node struct {
	span     Span
	children []*node
}

// finish closes the span at the given time. A span is finished once.
func (n *node) finish(at time.Time, forced bool) {
	if !n.span.EndTime.IsZero() {
		return
	}
	if at.Before(n.span.StartTime) {
		at = n.span.StartTime
	}
	n.span.EndTime = at
	n.span.Duration = at.Sub(n.span.StartTime)
	n.span.Forced = forced
}

// snapshot returns a copy of the span with its slices detached from the node.
func (n *node) snapshot() Span {
	s := n.span
	if len(n.children) > 0 {
		s.Children = make([]string, len(n.children))
		for i, c := range n.children {
			s.Children[i] = c.span.ID
		}
	}
	if n.span.Events != nil {
		s.Events = append([]Event(nil), n.span.Events...)
	}
	if n.span.Samples != nil {
		s.Samples = append([]Sample(nil), n.span.Samples...)
	}
	return s
}
