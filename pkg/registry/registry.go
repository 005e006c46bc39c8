package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stagehq/stagehand/internal/logging"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
)

// Handle is the registry's view of one instrument: the logical name, the
// driver behind it, and the lifecycle state. The registry owns handles
// exclusively; callers hold only the name.
type Handle struct {
	name   string
	driver ports.Driver

	mu    sync.Mutex
	state domain.HandleState
}

// Name returns the logical instrument name.
func (h *Handle) Name() string { return h.name }

// Driver returns the driver capability behind the handle.
func (h *Handle) Driver() ports.Driver { return h.driver }

// State returns the current lifecycle state.
func (h *Handle) State() domain.HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// transition applies a state change, enforcing the legal edges.
func (h *Handle) transition(next domain.HandleState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, err := h.state.Transition(next)
	if err != nil {
		return err
	}
	h.state = state
	return nil
}

// fault moves the handle to Faulted from any state.
func (h *Handle) fault() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = domain.StateFaulted
}

// Registry is the process-scoped catalog mapping logical instrument names to
// live driver instances. It has a defined init (empty) and teardown (Close);
// pass the instance explicitly, there is no package-level singleton.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for registry events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		handles: make(map[string]*Handle),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register connects the driver and adds it under the given logical name.
// It fails with domain.ErrDuplicateName if the name is taken. A driver whose
// Connect fails is registered in the Faulted state and the error is returned,
// so the caller can inspect it via HealthCheck or re-register after fixing
// the hardware.
func (r *Registry) Register(ctx context.Context, name string, driver ports.Driver) (*Handle, error) {
	r.mu.Lock()
	if _, exists := r.handles[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateName, name)
	}
	h := &Handle{name: name, driver: driver, state: domain.StateDisconnected}
	r.handles[name] = h
	r.mu.Unlock()

	_ = h.transition(domain.StateConnecting)
	if err := driver.Connect(ctx); err != nil {
		h.fault()
		r.logger.Warn("instrument connect failed", "instrument", name, "err", err)
		return h, fmt.Errorf("connect %q: %w", name, err)
	}
	if err := h.transition(domain.StateReady); err != nil {
		return nil, err
	}
	r.logger.Info("instrument registered", "instrument", name)
	return h, nil
}

// Resolve returns the handle for a logical name. It fails with
// domain.ErrNotFound for unknown names and domain.ErrUnavailable when the
// handle is Faulted or Disconnected.
func (r *Registry) Resolve(name string) (*Handle, error) {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}
	if state := h.State(); !state.Usable() {
		return nil, fmt.Errorf("%w: %q is %s", domain.ErrUnavailable, name, state)
	}
	return h, nil
}

// Release tears down the connection and removes the handle. Idempotent:
// releasing an unknown name is a no-op.
func (r *Registry) Release(ctx context.Context, name string) error {
	r.mu.Lock()
	h, ok := r.handles[name]
	delete(r.handles, name)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := h.driver.Close(ctx); err != nil {
		r.logger.Warn("instrument close failed", "instrument", name, "err", err)
		return fmt.Errorf("close %q: %w", name, err)
	}
	r.logger.Info("instrument released", "instrument", name)
	return nil
}

// HealthCheck probes the named driver without mutating instrument state.
// A probe failure transitions the handle to Faulted and is recorded, not
// propagated; the boolean result lets callers decide to retry or abort.
// A successful probe of a Faulted handle restores it to Ready via teardown
// and reconnect semantics (Faulted -> Disconnected -> Connecting -> Ready).
func (r *Registry) HealthCheck(ctx context.Context, name string) bool {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	if err := h.driver.Ping(ctx); err != nil {
		h.fault()
		r.logger.Warn("health check failed", "instrument", name, "err", err)
		return false
	}

	if h.State() == domain.StateFaulted {
		// Explicit recovery path: a fault never silently re-enters Ready.
		_ = h.transition(domain.StateDisconnected)
		_ = h.transition(domain.StateConnecting)
		_ = h.transition(domain.StateReady)
		r.logger.Info("instrument recovered", "instrument", name)
	}
	return true
}

// Names returns all registered logical names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	return names
}

// Snapshot captures the current value of every gettable parameter of every
// usable instrument, keyed by instrument name. Used for run metadata.
func (r *Registry) Snapshot(ctx context.Context) map[string]map[string]any {
	snapshot := make(map[string]map[string]any)
	for _, name := range r.Names() {
		h, err := r.Resolve(name)
		if err != nil {
			continue
		}
		values := make(map[string]any)
		for _, desc := range h.Driver().Parameters() {
			if !desc.Gettable {
				continue
			}
			value, err := h.Driver().GetParameter(ctx, desc.Name)
			if err != nil {
				r.logger.Debug("snapshot read failed", "instrument", name, "parameter", desc.Name, "err", err)
				continue
			}
			values[desc.Name] = value
		}
		snapshot[name] = values
	}
	return snapshot
}

// Watch runs periodic health checks on every registered instrument until the
// context is cancelled. Probe failures are recorded on the handles, never
// propagated.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range r.Names() {
				r.HealthCheck(ctx, name)
			}
		}
	}
}

// Close releases every handle. Idempotent.
func (r *Registry) Close(ctx context.Context) error {
	var firstErr error
	for _, name := range r.Names() {
		if err := r.Release(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
