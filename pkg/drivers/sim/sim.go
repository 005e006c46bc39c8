// Package sim provides a simulated signal-source instrument. It implements
// the full driver capability against an in-memory model, so registries,
// gateways and sweeps can be exercised without hardware on the bench.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
)

// Settings configures a simulated instrument. The zero value is usable.
type Settings struct {
	// Seed makes the synthetic signal deterministic for tests.
	Seed int64 `mapstructure:"seed"`

	// Noise is the amplitude of the random component added to each reading.
	Noise float64 `mapstructure:"noise"`

	// MinFrequency and MaxFrequency bound the frequency parameter, in Hz.
	MinFrequency float64 `mapstructure:"min_frequency"`
	MaxFrequency float64 `mapstructure:"max_frequency"`
}

// FromSettings builds a Driver from a raw settings map, as found in a rig
// configuration document.
func FromSettings(raw map[string]any) (*Driver, error) {
	var s Settings
	if err := mapstructure.Decode(raw, &s); err != nil {
		return nil, fmt.Errorf("decode sim settings: %w", err)
	}
	return New(s), nil
}

// Driver simulates a microwave signal source with frequency, power and
// output-enable parameters, plus a triggered two-quadrature read.
type Driver struct {
	mu        sync.Mutex
	connected bool
	rng       *rand.Rand
	noise     float64

	frequency float64
	power     float64
	output    string

	lastSeq  uint64
	lastRead map[string]float64
	armed    bool

	descriptors []domain.ParameterDescriptor
}

var _ ports.Driver = (*Driver)(nil)
var _ ports.Disarmer = (*Driver)(nil)

// New creates a simulated instrument.
func New(s Settings) *Driver {
	if s.MaxFrequency == 0 {
		s.MaxFrequency = 20e9
	}
	seed := s.Seed
	if seed == 0 {
		seed = 1
	}
	return &Driver{
		rng:       rand.New(rand.NewSource(seed)),
		noise:     s.Noise,
		frequency: s.MinFrequency,
		power:     -20,
		output:    "off",
		descriptors: []domain.ParameterDescriptor{
			{Name: "frequency", Kind: domain.KindNumeric, Units: "Hz", Min: s.MinFrequency, Max: s.MaxFrequency, Settable: true, Gettable: true},
			{Name: "power", Kind: domain.KindNumeric, Units: "dBm", Min: -60, Max: 20, Settable: true, Gettable: true},
			{Name: "output", Kind: domain.KindEnum, Enum: []string{"on", "off"}, Settable: true, Gettable: true},
		},
	}
}

// Connect marks the instrument connected. Idempotent.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

// Close disconnects and disables the output, mirroring real sources that
// idle on teardown. Idempotent.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = "off"
	d.connected = false
	return nil
}

// Ping reports whether the instrument is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return fmt.Errorf("%w: not connected", domain.ErrCommunication)
	}
	return nil
}

// Parameters returns the declared descriptors.
func (d *Driver) Parameters() []domain.ParameterDescriptor {
	return d.descriptors
}

func (d *Driver) descriptor(name string) (domain.ParameterDescriptor, error) {
	for _, desc := range d.descriptors {
		if desc.Name == name {
			return desc, nil
		}
	}
	return domain.ParameterDescriptor{}, fmt.Errorf("%w: unknown parameter %q", domain.ErrInvalidValue, name)
}

// SetParameter validates against the descriptor bounds and stores the value.
func (d *Driver) SetParameter(ctx context.Context, name string, value any) error {
	desc, err := d.descriptor(name)
	if err != nil {
		return err
	}
	if err := desc.Validate(value); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return fmt.Errorf("%w: not connected", domain.ErrCommunication)
	}
	switch name {
	case "frequency":
		d.frequency, _ = asFloat(value)
	case "power":
		d.power, _ = asFloat(value)
	case "output":
		d.output = value.(string)
	}
	return nil
}

// GetParameter reads a stored value back.
func (d *Driver) GetParameter(ctx context.Context, name string) (any, error) {
	if _, err := d.descriptor(name); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, fmt.Errorf("%w: not connected", domain.ErrCommunication)
	}
	switch name {
	case "frequency":
		return d.frequency, nil
	case "power":
		return d.power, nil
	case "output":
		return d.output, nil
	}
	return nil, fmt.Errorf("%w: unknown parameter %q", domain.ErrInvalidValue, name)
}

// Trigger arms an acquisition for seq. A sequence number not greater than
// the last seen one is a stale duplicate and is ignored.
func (d *Driver) Trigger(ctx context.Context, seq uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return fmt.Errorf("%w: not connected", domain.ErrCommunication)
	}
	if seq <= d.lastSeq {
		return nil
	}
	d.lastSeq = seq
	d.armed = true
	d.lastRead = nil
	return nil
}

// Read produces the payload for seq. Re-reading the current sequence returns
// the cached payload, so a retried read converges.
func (d *Driver) Read(ctx context.Context, seq uint64) (map[string]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, fmt.Errorf("%w: not connected", domain.ErrCommunication)
	}
	if seq != d.lastSeq {
		return nil, fmt.Errorf("%w: read for stale sequence %d (current %d)", domain.ErrCommunication, seq, d.lastSeq)
	}
	if d.lastRead != nil {
		return d.lastRead, nil
	}

	// Synthetic Lorentzian response centred mid-band, scaled by power.
	amplitude := math.Pow(10, d.power/20)
	if d.output != "on" {
		amplitude = 0
	}
	detune := (d.frequency - 10e9) / 1e9
	signal := amplitude / (1 + detune*detune)

	d.lastRead = map[string]float64{
		"i": signal + d.noise*d.rng.NormFloat64(),
		"q": signal/2 + d.noise*d.rng.NormFloat64(),
	}
	d.armed = false
	return d.lastRead, nil
}

// Disarm aborts a pending acquisition.
func (d *Driver) Disarm(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
	return nil
}

func asFloat(value any) (float64, bool) {
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
