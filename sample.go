package probez

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Verdict classifies a sample against its declared bounds.
type Verdict uint8

const (
	// InRange means min <= value <= max.
	InRange Verdict = iota
	// OutOfRange means the bounds were valid but the value fell outside them.
	OutOfRange
	// InvalidBounds means min > max (or a bound was NaN); the value was not judged.
	InvalidBounds
)

func (v Verdict) String() string {
	switch v {
	case InRange:
		return "in_range"
	case OutOfRange:
		return "out_of_range"
	case InvalidBounds:
		return "invalid_bounds"
	default:
		return "verdict(" + strconv.Itoa(int(v)) + ")"
	}
}

// MarshalText encodes the verdict by name.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a verdict name.
func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "in_range":
		*v = InRange
	case "out_of_range":
		*v = OutOfRange
	case "invalid_bounds":
		*v = InvalidBounds
	default:
		return fmt.Errorf("unknown verdict %q", text)
	}
	return nil
}

// Bounds is the annotation metadata declared for a sampled variable.
type Bounds struct {
	Unit string  `json:"unit" yaml:"unit"`
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
}

// Validate reports ErrInvalidBounds unless Min <= Max.
func (b Bounds) Validate() error {
	// Negated form so NaN bounds are rejected too.
	if !(b.Min <= b.Max) {
		return fmt.Errorf("%w: min %v > max %v", ErrInvalidBounds, b.Min, b.Max)
	}
	return nil
}

// Check judges value against the bounds.
func (b Bounds) Check(value float64) Verdict {
	if b.Validate() != nil {
		return InvalidBounds
	}
	if b.Min <= value && value <= b.Max {
		return InRange
	}
	return OutOfRange
}

// Sample is one observed value of an annotated variable.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"`
	Unit      string    `json:"unit"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Value     float64   `json:"value"`
	Verdict   Verdict   `json:"verdict"`
	SpanID    string    `json:"span_id,omitempty"`
	Context   string    `json:"context"`
	Unscoped  bool      `json:"unscoped,omitempty"`
}

// Bounds returns the declared bounds the sample was judged against.
func (s Sample) Bounds() Bounds {
	return Bounds{Unit: s.Unit, Min: s.Min, Max: s.Max}
}

// InRange reports whether the sample had valid bounds and fell inside them.
func (s Sample) InRange() bool {
	return s.Verdict == InRange
}

// callSite labels the caller skip frames above it as file:line.
func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
