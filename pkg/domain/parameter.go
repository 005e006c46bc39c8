package domain

import (
	"fmt"
	"math"
)

// ParameterKind classifies the value space of an instrument parameter.
type ParameterKind string

const (
	KindNumeric ParameterKind = "numeric"
	KindEnum    ParameterKind = "enum"
	KindString  ParameterKind = "string"
)

// ParameterDescriptor declares the shape of one instrument parameter.
// Descriptors are immutable once declared by a driver.
type ParameterDescriptor struct {
	Name  string        `json:"name" yaml:"name"`
	Kind  ParameterKind `json:"kind" yaml:"kind"`
	Units string        `json:"units,omitempty" yaml:"units,omitempty"`

	// Min and Max bound numeric parameters (closed interval). Ignored for
	// other kinds. Both zero means unbounded.
	Min float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Step, when non-zero, restricts numeric values to the grid
	// Min, Min+Step, Min+2*Step, ... up to Max.
	Step float64 `json:"step,omitempty" yaml:"step,omitempty"`

	// Enum lists the admissible values for enum parameters.
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// Settable and Gettable declare which operations the driver supports
	// for this parameter.
	Settable bool `json:"settable" yaml:"settable"`
	Gettable bool `json:"gettable" yaml:"gettable"`
}

// Validate checks a candidate value against the descriptor's bounds.
// It returns an error wrapping ErrInvalidValue on any violation.
func (d ParameterDescriptor) Validate(value any) error {
	switch d.Kind {
	case KindNumeric:
		v, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: %q expects a numeric value, got %T", ErrInvalidValue, d.Name, value)
		}
		if d.Min != 0 || d.Max != 0 {
			if v < d.Min || v > d.Max {
				return fmt.Errorf("%w: %q = %v outside [%v, %v]", ErrInvalidValue, d.Name, v, d.Min, d.Max)
			}
		}
		if d.Step > 0 {
			steps := (v - d.Min) / d.Step
			if math.Abs(steps-math.Round(steps)) > 1e-9 {
				return fmt.Errorf("%w: %q = %v not on grid of step %v", ErrInvalidValue, d.Name, v, d.Step)
			}
		}
	case KindEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %q expects a string, got %T", ErrInvalidValue, d.Name, value)
		}
		for _, e := range d.Enum {
			if e == s {
				return nil
			}
		}
		return fmt.Errorf("%w: %q = %q not in %v", ErrInvalidValue, d.Name, s, d.Enum)
	case KindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %q expects a string, got %T", ErrInvalidValue, d.Name, value)
		}
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
