package stagehand

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stagehq/stagehand/internal/config"
	"github.com/stagehq/stagehand/internal/logging"
	"github.com/stagehq/stagehand/internal/metrics"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/drivers/sim"
	"github.com/stagehq/stagehand/pkg/gateway"
	"github.com/stagehq/stagehand/pkg/ports"
	"github.com/stagehq/stagehand/pkg/registry"
	"github.com/stagehq/stagehand/pkg/sweep"
)

// DriverFactory builds a driver from its rig declaration: the gateway
// address (for remote instruments) and the free-form settings map.
type DriverFactory func(address string, settings map[string]any) (ports.Driver, error)

// Stage is the high-level entry point: a registry of staged instruments plus
// the engine that runs measurement plans over them.
type Stage struct {
	registry  *registry.Registry
	engine    *sweep.Engine
	store     ports.RunStore
	logger    *slog.Logger
	metrics   *metrics.Metrics
	factories map[string]DriverFactory

	retries int
	backoff time.Duration
}

// Option defines a functional option for configuring the Stage.
type Option func(*Stage)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stage) {
		s.logger = logger
	}
}

// WithRunStore persists every finished run result to the given store.
func WithRunStore(store ports.RunStore) Option {
	return func(s *Stage) {
		s.store = store
	}
}

// WithMetrics wires prometheus collectors into the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Stage) {
		s.metrics = m
	}
}

// WithRetry bounds the retry policy for transient failures during runs.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(s *Stage) {
		s.retries = retries
		s.backoff = backoff
	}
}

// WithDriver registers a factory for a driver kind named in rig documents.
func WithDriver(kind string, factory DriverFactory) Option {
	return func(s *Stage) {
		s.factories[kind] = factory
	}
}

// New creates an empty Stage. The "sim" and "remote" driver kinds are
// built in; register others with WithDriver.
func New(opts ...Option) *Stage {
	s := &Stage{
		logger:    logging.NewNop(),
		metrics:   metrics.NewNop(),
		factories: make(map[string]DriverFactory),
		retries:   3,
		backoff:   100 * time.Millisecond,
	}

	s.factories["sim"] = func(address string, settings map[string]any) (ports.Driver, error) {
		return sim.FromSettings(settings)
	}
	s.factories["remote"] = func(address string, settings map[string]any) (ports.Driver, error) {
		name, _ := settings["instrument"].(string)
		if address == "" || name == "" {
			return nil, fmt.Errorf("remote driver needs an address and an instrument setting")
		}
		return gateway.NewClient(address, name, gateway.WithClientLogger(s.logger)), nil
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registry = registry.New(registry.WithLogger(s.logger))
	s.engine = sweep.NewEngine(
		sweep.ResolverFunc(s.resolveDriver),
		sweep.WithLogger(s.logger),
		sweep.WithMetrics(s.metrics),
		sweep.WithRetry(s.retries, s.backoff),
	)
	return s
}

// Registry exposes the instrument registry for direct access.
func (s *Stage) Registry() *registry.Registry {
	return s.registry
}

// LoadRig instantiates and registers every instrument declared in the rig
// document at path. Instruments whose driver fails to connect are left
// registered in the Faulted state; the first such error is returned after
// all instruments have been attempted.
func (s *Stage) LoadRig(ctx context.Context, path string) error {
	rig, err := config.LoadRig(path)
	if err != nil {
		return err
	}

	var firstErr error
	for _, spec := range rig.Instruments {
		factory, ok := s.factories[spec.Driver]
		if !ok {
			return fmt.Errorf("rig %q: unknown driver kind %q for %q", rig.Name, spec.Driver, spec.Name)
		}
		driver, err := factory(spec.Address, spec.Settings)
		if err != nil {
			return fmt.Errorf("rig %q: build driver for %q: %w", rig.Name, spec.Name, err)
		}
		if _, err := s.registry.Register(ctx, spec.Name, driver); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadPlan reads a plan document from path.
func (s *Stage) LoadPlan(path string) (*domain.Plan, error) {
	return config.LoadPlan(path)
}

// Run executes the plan, delivering samples to sink. The rig snapshot taken
// before the run is merged into the result metadata, and the result is
// persisted when a run store is configured.
func (s *Stage) Run(ctx context.Context, plan domain.Plan, sink ports.Sink) *domain.RunResult {
	snapshot := s.registry.Snapshot(ctx)

	result := s.engine.Run(ctx, plan, sink)

	if result.Metadata == nil {
		result.Metadata = make(map[string]string)
	}
	for instrument, values := range snapshot {
		for name, value := range values {
			result.Metadata[instrument+"."+name] = fmt.Sprintf("%v", value)
		}
	}

	if s.store != nil {
		if err := s.store.Save(ctx, result.ID, result); err != nil {
			s.logger.Warn("run result not persisted", "run_id", result.ID, "err", err)
		}
	}
	return result
}

// Close releases every staged instrument.
func (s *Stage) Close(ctx context.Context) error {
	return s.registry.Close(ctx)
}

// resolveDriver adapts the registry to the engine's resolver port.
func (s *Stage) resolveDriver(name string) (ports.Driver, error) {
	h, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return h.Driver(), nil
}

// Connect returns a driver proxy for one instrument served by a remote
// gateway, for scripts that address hardware without a full rig document.
func Connect(gatewayURL, instrument string, opts ...gateway.ClientOption) ports.Driver {
	return gateway.NewClient(gatewayURL, instrument, opts...)
}
