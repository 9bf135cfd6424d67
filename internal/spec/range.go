package spec

import (
	"fmt"
	"strconv"
)

// Range is an inclusive interval of integers. A nil Max means the range has
// no upper bound; the zero Range therefore accepts every non-negative value.
type Range struct {
	Min int  `mapstructure:"min" json:"min" yaml:"min"`
	Max *int `mapstructure:"max" json:"max,omitempty" yaml:"max,omitempty"`
}

// NewRange returns the bounded range [min, max].
func NewRange(min, max int) (Range, error) {
	if min < 0 {
		return Range{}, fmt.Errorf("range minimum must not be negative (was %d)", min)
	}
	if max < min {
		return Range{}, fmt.Errorf("range maximum %d is below minimum %d", max, min)
	}
	return Range{Min: min, Max: &max}, nil
}

// Exactly boxes a scalar into the range [x, x].
func Exactly(x int) Range {
	return Range{Min: x, Max: &x}
}

// AtLeast returns the unbounded range [min, inf].
func AtLeast(min int) Range {
	return Range{Min: min}
}

// Port is a single-port Range.
func Port(p int) Range {
	return Exactly(p)
}

// Bounded reports whether the range has an upper bound.
func (r Range) Bounded() bool {
	return r.Max != nil
}

// InRange reports whether x falls inside the range.
func (r Range) InRange(x float64) bool {
	if x < float64(r.Min) {
		return false
	}
	return r.Max == nil || x <= float64(*r.Max)
}

// Single reports whether the range covers exactly one value.
func (r Range) Single() bool {
	return r.Max != nil && *r.Max == r.Min
}

// Upper returns the upper bound, or 0 when unbounded.
func (r Range) Upper() int {
	if r.Max == nil {
		return 0
	}
	return *r.Max
}

func (r Range) String() string {
	switch {
	case r.Max == nil:
		return fmt.Sprintf("[%d, inf]", r.Min)
	case *r.Max == r.Min:
		return strconv.Itoa(r.Min)
	default:
		return fmt.Sprintf("[%d, %d]", r.Min, *r.Max)
	}
}
