package domain

import (
	"fmt"
	"time"
)

// Sweep assigns an ordered sequence of values to one instrument parameter.
type Sweep struct {
	Instrument string    `json:"instrument" yaml:"instrument"`
	Parameter  string    `json:"parameter" yaml:"parameter"`
	Values     []float64 `json:"values" yaml:"values"`
}

// Acquisition names the instrument that is triggered and read at every
// sweep point, and the signals extracted from its payload.
type Acquisition struct {
	Instrument string   `json:"instrument" yaml:"instrument"`
	Signals    []string `json:"signals,omitempty" yaml:"signals,omitempty"`
}

// Plan describes one complete measurement run. It is created once per run
// and must not be mutated while the run executes.
//
// Sweeps are ordered outermost first: the first sweep varies slowest and
// the last varies fastest, giving lexicographic iteration order over the
// cartesian product of all value sequences.
type Plan struct {
	Name    string      `json:"name" yaml:"name"`
	Sweeps  []Sweep     `json:"sweeps" yaml:"sweeps"`
	Acquire Acquisition `json:"acquire" yaml:"acquire"`

	// Repetitions acquires each point this many times, as an implicit
	// innermost axis. Zero means one acquisition per point.
	Repetitions int `json:"repetitions,omitempty" yaml:"repetitions,omitempty"`

	// Settle is an optional delay between setting parameters and triggering,
	// to let hardware settle.
	Settle time.Duration `json:"settle,omitempty" yaml:"settle,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TotalPoints returns the number of samples a full run of the plan delivers.
func (p Plan) TotalPoints() int {
	n := 1
	for _, s := range p.Sweeps {
		n *= len(s.Values)
	}
	if p.Repetitions > 1 {
		n *= p.Repetitions
	}
	return n
}

// Shape returns the length of every axis, sweeps outermost first and the
// repetition axis (if any) last.
func (p Plan) Shape() []int {
	shape := make([]int, 0, len(p.Sweeps)+1)
	for _, s := range p.Sweeps {
		shape = append(shape, len(s.Values))
	}
	if p.Repetitions > 1 {
		shape = append(shape, p.Repetitions)
	}
	return shape
}

// Validate checks structural plan invariants before a run starts.
func (p Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan has no name")
	}
	if p.Acquire.Instrument == "" {
		return fmt.Errorf("plan %q names no acquisition instrument", p.Name)
	}
	seen := make(map[string]bool, len(p.Sweeps))
	for i, s := range p.Sweeps {
		if s.Instrument == "" || s.Parameter == "" {
			return fmt.Errorf("plan %q sweep %d has an incomplete target", p.Name, i)
		}
		if len(s.Values) == 0 {
			return fmt.Errorf("plan %q sweep %s.%s has no values", p.Name, s.Instrument, s.Parameter)
		}
		key := s.Instrument + "." + s.Parameter
		if seen[key] {
			return fmt.Errorf("plan %q sweeps %s more than once", p.Name, key)
		}
		seen[key] = true
	}
	if p.Repetitions < 0 {
		return fmt.Errorf("plan %q has negative repetitions", p.Name)
	}
	return nil
}
