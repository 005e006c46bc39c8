package domain

import "time"

// Sample is one measured data point. Its coordinate is the current index
// along every plan axis (sweeps outermost first, repetitions last) and is
// unique within one run. Samples are never mutated after creation.
type Sample struct {
	Coordinate []int              `json:"coordinate"`
	Values     map[string]float64 `json:"values"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Clone returns a deep copy so sinks can retain samples safely.
func (s Sample) Clone() Sample {
	out := Sample{
		Coordinate: make([]int, len(s.Coordinate)),
		Values:     make(map[string]float64, len(s.Values)),
		Timestamp:  s.Timestamp,
	}
	copy(out.Coordinate, s.Coordinate)
	for k, v := range s.Values {
		out.Values[k] = v
	}
	return out
}
