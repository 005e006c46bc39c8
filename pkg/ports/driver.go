package ports

import (
	"context"

	"github.com/stagehq/stagehand/pkg/domain"
)

// Driver is the polymorphic instrument capability implemented per model.
// The orchestrator and registry depend only on this interface, never on
// concrete driver types.
//
// Trigger and Read carry a caller-supplied sequence number that increases
// monotonically per acquisition step. Remote boundaries use it to detect
// stale duplicate triggers after a retry; a Read for the most recent
// sequence must return the same payload if re-issued.
type Driver interface {
	// Connect establishes the bus connection. Idempotent for a connected driver.
	Connect(ctx context.Context) error

	// Close tears down the connection. Idempotent.
	Close(ctx context.Context) error

	// Ping probes the instrument without mutating its state.
	Ping(ctx context.Context) error

	// Parameters returns the declared parameter descriptors.
	Parameters() []domain.ParameterDescriptor

	// SetParameter writes one parameter. Setting an identical value twice
	// must converge to the same instrument state (idempotent).
	SetParameter(ctx context.Context, name string, value any) error

	// GetParameter reads one parameter back.
	GetParameter(ctx context.Context, name string) (any, error)

	// Trigger arms and fires an acquisition for the given sequence number.
	// A trigger whose sequence is not greater than the last seen one is a
	// stale duplicate and must be ignored without error.
	Trigger(ctx context.Context, seq uint64) error

	// Read returns the payload for the given sequence number.
	Read(ctx context.Context, seq uint64) (map[string]float64, error)
}

// Disarmer is an optional capability for drivers that can abort an armed
// acquisition. The orchestrator type-asserts for it after a failed
// trigger/read step to avoid leaving the instrument armed.
type Disarmer interface {
	Disarm(ctx context.Context) error
}
