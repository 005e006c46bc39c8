package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
)

// Locker implements ports.Locker with process-local leases. It is the
// default synchronization backend for a single-gateway deployment; use the
// redis adapter when several gateways front the same hardware.
type Locker struct {
	mu     sync.Mutex
	leases map[string]*lease

	onExpire func(name string)
}

// LockerOption configures the Locker.
type LockerOption func(*Locker)

// WithOnExpire registers a callback invoked when a lease is force-released
// after its TTL elapsed. Used by the gateway to count expiries.
func WithOnExpire(fn func(name string)) LockerOption {
	return func(l *Locker) {
		l.onExpire = fn
	}
}

// NewLocker creates an in-memory locker.
func NewLocker(opts ...LockerOption) *Locker {
	l := &Locker{
		leases: make(map[string]*lease),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type lease struct {
	locker   *Locker
	name     string
	clientID string
	token    string

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

var _ ports.Lease = (*lease)(nil)

func (l *lease) Token() string            { return l.token }
func (l *lease) Context() context.Context { return l.ctx }

func (l *lease) Release(ctx context.Context) error {
	l.locker.release(l, false)
	return nil
}

// Acquire claims the named instrument. It fails fast with domain.ErrLocked
// while another lease is live; it never blocks waiting for release.
func (l *Locker) Acquire(ctx context.Context, name, clientID string, ttl time.Duration) (ports.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.leases[name]; ok {
		return nil, fmt.Errorf("%w: %q held by %s", domain.ErrLocked, name, held.clientID)
	}

	leaseCtx, cancel := context.WithCancel(context.Background())
	entry := &lease{
		locker:   l,
		name:     name,
		clientID: clientID,
		token:    uuid.NewString(),
		ctx:      leaseCtx,
		cancel:   cancel,
	}
	entry.timer = time.AfterFunc(ttl, func() {
		l.release(entry, true)
	})
	l.leases[name] = entry
	return entry, nil
}

// release removes the lease if it is still the live one for its name.
// Cancelling the lease context makes any in-flight guarded operation
// surface as timed out to its caller.
func (l *Locker) release(entry *lease, expired bool) {
	l.mu.Lock()
	current, ok := l.leases[entry.name]
	if ok && current == entry {
		delete(l.leases, entry.name)
	}
	l.mu.Unlock()

	entry.timer.Stop()
	entry.cancel()

	if expired && ok && current == entry && l.onExpire != nil {
		l.onExpire(entry.name)
	}
}
