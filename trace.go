package probez

import (
	"time"
)

// Trace is a completed root span together with its whole subtree.
// Spans are stored root first in call order (pre-order).
// Traces delivered to sinks are shared between sinks; treat them as read-only.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Trace struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	ID        string    `json:"trace_id"`
	Context   string    `json:"context"`
	Spans     []Span    `json:"spans"`
	Forced    bool      `json:"forced,omitempty"`
}

// TreeNode is a span with its children resolved, for walking a trace as a tree.
type TreeNode struct {
	Span     Span
	Children []*TreeNode
	Parent   *TreeNode
}

// assemble freezes the subtree under root into a trace.
func assemble(id, context string, root *node) Trace {
	t := Trace{
		ID:        id,
		Context:   context,
		StartTime: root.span.StartTime,
		EndTime:   root.span.EndTime,
	}

	stack := []*node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s := n.snapshot()
		if s.Forced {
			t.Forced = true
		}
		t.Spans = append(t.Spans, s)

		// Push children in reverse so they pop in call order.
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	return t
}

// Root returns the top-level span. Zero if the trace is empty.
func (t Trace) Root() Span {
	if len(t.Spans) == 0 {
		return Span{}
	}
	return t.Spans[0]
}

// Span finds a span by ID.
func (t Trace) Span(id string) (Span, bool) {
	for i := range t.Spans {
		if t.Spans[i].ID == id {
			return t.Spans[i], true
		}
	}
	return Span{}, false
}

// ChildrenOf returns the direct children of a span in call order.
func (t Trace) ChildrenOf(id string) []Span {
	parent, ok := t.Span(id)
	if !ok || len(parent.Children) == 0 {
		return nil
	}
	result := make([]Span, 0, len(parent.Children))
	for _, childID := range parent.Children {
		if child, ok := t.Span(childID); ok {
			result = append(result, child)
		}
	}
	return result
}

// Tree links the trace spans into a tree and returns its root.
// Returns nil for an empty trace.
func (t Trace) Tree() *TreeNode {
	if len(t.Spans) == 0 {
		return nil
	}
	nodes := make(map[string]*TreeNode, len(t.Spans))
	for i := range t.Spans {
		nodes[t.Spans[i].ID] = &TreeNode{Span: t.Spans[i]}
	}
	for _, n := range nodes {
		for _, childID := range n.Span.Children {
			if child, ok := nodes[childID]; ok {
				child.Parent = n
				n.Children = append(n.Children, child)
			}
		}
	}
	return nodes[t.Spans[0].ID]
}

// Events returns every event in the trace in span pre-order.
func (t Trace) Events() []Event {
	var events []Event
	for i := range t.Spans {
		events = append(events, t.Spans[i].Events...)
	}
	return events
}

// Samples returns every sample in the trace in span pre-order.
func (t Trace) Samples() []Sample {
	var samples []Sample
	for i := range t.Spans {
		samples = append(samples, t.Spans[i].Samples...)
	}
	return samples
}

// MaxDepth returns the number of nesting levels in the trace.
func (t Trace) MaxDepth() int {
	if len(t.Spans) == 0 {
		return 0
	}
	deepest := 0
	for i := range t.Spans {
		if t.Spans[i].Depth > deepest {
			deepest = t.Spans[i].Depth
		}
	}
	return deepest + 1
}
