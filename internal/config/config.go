// Package config loads rig and plan documents from YAML. A rig declares the
// instruments on the bench by logical name; a plan declares one measurement
// run over them. Decoding is strict: unknown fields are rejected so typos in
// a config file fail loudly instead of silently dropping a sweep.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/stagehq/stagehand/pkg/domain"
	"gopkg.in/yaml.v3"
)

// InstrumentSpec declares one instrument in a rig document.
type InstrumentSpec struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`

	// Address points remote instruments at their gateway. Local drivers
	// leave it empty.
	Address string `yaml:"address,omitempty"`

	// Settings is passed verbatim to the driver factory.
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Rig is the declared set of instruments for one bench.
type Rig struct {
	Name        string           `yaml:"name"`
	Instruments []InstrumentSpec `yaml:"instruments"`
}

// Validate checks structural rig invariants.
func (r *Rig) Validate() error {
	if len(r.Instruments) == 0 {
		return fmt.Errorf("rig %q declares no instruments", r.Name)
	}
	seen := make(map[string]bool, len(r.Instruments))
	for i, spec := range r.Instruments {
		if spec.Name == "" {
			return fmt.Errorf("rig %q instrument %d has no name", r.Name, i)
		}
		if spec.Driver == "" {
			return fmt.Errorf("rig %q instrument %q names no driver", r.Name, spec.Name)
		}
		if seen[spec.Name] {
			return fmt.Errorf("rig %q declares instrument %q twice", r.Name, spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

// LoadRig reads and validates a rig document.
func LoadRig(path string) (*Rig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rig %s: %w", path, err)
	}
	var rig Rig
	if err := strictUnmarshal(data, &rig); err != nil {
		return nil, fmt.Errorf("parse rig %s: %w", path, err)
	}
	if err := rig.Validate(); err != nil {
		return nil, err
	}
	return &rig, nil
}

// span declares linearly spaced sweep values, as an alternative to listing
// them out.
type span struct {
	Start  float64 `yaml:"start"`
	Stop   float64 `yaml:"stop"`
	Points int     `yaml:"points"`
}

// sweepDoc is the YAML shape of one sweep: either explicit values or a span.
type sweepDoc struct {
	Instrument string    `yaml:"instrument"`
	Parameter  string    `yaml:"parameter"`
	Values     []float64 `yaml:"values,omitempty"`
	Span       *span     `yaml:"span,omitempty"`
}

// planDoc is the YAML shape of a plan. Settle is a duration string ("10ms").
type planDoc struct {
	Name        string             `yaml:"name"`
	Sweeps      []sweepDoc         `yaml:"sweeps"`
	Acquire     domain.Acquisition `yaml:"acquire"`
	Repetitions int                `yaml:"repetitions,omitempty"`
	Settle      string             `yaml:"settle,omitempty"`
	Metadata    map[string]string  `yaml:"metadata,omitempty"`
}

// LoadPlan reads and validates a plan document.
func LoadPlan(path string) (*domain.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	var doc planDoc
	if err := strictUnmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}

	plan := &domain.Plan{
		Name:        doc.Name,
		Acquire:     doc.Acquire,
		Repetitions: doc.Repetitions,
		Metadata:    doc.Metadata,
	}
	for i, sd := range doc.Sweeps {
		values, err := sd.values()
		if err != nil {
			return nil, fmt.Errorf("plan %s sweep %d: %w", path, i, err)
		}
		plan.Sweeps = append(plan.Sweeps, domain.Sweep{
			Instrument: sd.Instrument,
			Parameter:  sd.Parameter,
			Values:     values,
		})
	}
	if doc.Settle != "" {
		settle, err := time.ParseDuration(doc.Settle)
		if err != nil {
			return nil, fmt.Errorf("plan %s: invalid settle %q: %w", path, doc.Settle, err)
		}
		plan.Settle = settle
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// values materializes the sweep's value sequence.
func (sd sweepDoc) values() ([]float64, error) {
	if len(sd.Values) > 0 && sd.Span != nil {
		return nil, fmt.Errorf("declare either values or span, not both")
	}
	if sd.Span != nil {
		sp := *sd.Span
		if sp.Points < 2 {
			return nil, fmt.Errorf("span needs at least 2 points, got %d", sp.Points)
		}
		values := make([]float64, sp.Points)
		step := (sp.Stop - sp.Start) / float64(sp.Points-1)
		for i := range values {
			values[i] = sp.Start + float64(i)*step
		}
		return values, nil
	}
	return sd.Values, nil
}

// strictUnmarshal decodes YAML rejecting unknown fields.
func strictUnmarshal(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
