package probez

import (
	"errors"
	"fmt"
)

// Protocol violations reported by the probe.
var (
	ErrMismatchedSpan    = errors.New("mismatched span")
	ErrUnbalancedSpan    = errors.New("unbalanced span")
	ErrSpanDepthExceeded = errors.New("span depth exceeded")
	ErrInvalidBounds     = errors.New("invalid bounds")
	ErrContextClosed     = errors.New("execution context closed")
)

// ProtocolError describes a single misuse of the instrumentation contract.
// It unwraps to one of the sentinel errors above.
type ProtocolError struct {
	Err     error
	Context string // Execution context name.
	Span    Key    // Span or variable the call referred to.
	Detail  string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%v: context=%s span=%s", e.Err, e.Context, e.Span)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// errorKind maps an error to the label used for metrics and logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMismatchedSpan):
		return "mismatched_span"
	case errors.Is(err, ErrUnbalancedSpan):
		return "unbalanced_span"
	case errors.Is(err, ErrSpanDepthExceeded):
		return "span_depth_exceeded"
	case errors.Is(err, ErrInvalidBounds):
		return "invalid_bounds"
	case errors.Is(err, ErrContextClosed):
		return "context_closed"
	default:
		return "unknown"
	}
}
