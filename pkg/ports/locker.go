package ports

import (
	"context"
	"time"
)

// Lease is a time-bounded exclusive claim on an instrument.
type Lease interface {
	// Token identifies the lease for guarded remote calls.
	Token() string

	// Context is cancelled when the lease expires or is force-released.
	// Guarded operations should run under it so an expired lease surfaces
	// as a timeout to the original caller.
	Context() context.Context

	// Release gives up the lease. Idempotent.
	Release(ctx context.Context) error
}

// Locker grants at-most-one-writer access to an instrument across processes.
// It is the sole synchronization point between concurrent stage runs; the
// orchestrator implements no cross-process locking of its own.
type Locker interface {
	// Acquire claims the named instrument for clientID until the TTL elapses
	// or the lease is released. It fails fast with domain.ErrLocked when
	// another client holds the lease.
	Acquire(ctx context.Context, name, clientID string, ttl time.Duration) (Lease, error)
}
