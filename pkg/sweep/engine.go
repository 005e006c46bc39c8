package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/stagehq/stagehand/internal/logging"
	"github.com/stagehq/stagehand/internal/metrics"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
)

// Resolver yields the driver capability for a logical instrument name.
// The registry satisfies this through a thin adapter; the engine never
// depends on the registry type itself.
type Resolver interface {
	Resolve(name string) (ports.Driver, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (ports.Driver, error)

func (f ResolverFunc) Resolve(name string) (ports.Driver, error) {
	return f(name)
}

// Engine executes measurement plans: it walks the sweep grid in
// lexicographic order, sets parameters, triggers acquisitions, and delivers
// each sample to the sink synchronously so sink receipt order matches
// iteration order.
//
// Execution is single-threaded over sweep steps on purpose; acquisition
// order is a correctness requirement, not a convenience. Cancellation is
// cooperative and observed only between steps, never mid-step, so a cancel
// cannot leave an instrument in an undefined armed state.
type Engine struct {
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics

	retries int
	backoff time.Duration
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger configures a logger for engine events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics wires prometheus counters for samples and retries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRetry bounds the retry policy for transient failures: up to retries
// re-attempts with exponential backoff starting at backoff and doubling.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.retries = retries
		e.backoff = backoff
	}
}

// NewEngine creates an engine that resolves instruments through resolver.
func NewEngine(resolver Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		retries:  3,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// axis binds one sweep specification to its resolved driver, tracking the
// last value written so unchanged outer-axis values are not re-sent on
// every inner iteration.
type axis struct {
	spec    domain.Sweep
	driver  ports.Driver
	lastSet int // index of last written value, -1 before first write
}

// Run executes the plan against the resolved instruments, delivering every
// sample to sink. It always returns a result; errors that end the run early
// are recorded on it. Cancelling ctx stops the run at the next step boundary
// with state Cancelled.
func (e *Engine) Run(ctx context.Context, plan domain.Plan, sink ports.Sink) *domain.RunResult {
	result := &domain.RunResult{
		ID:        uuid.NewString(),
		Plan:      plan.Name,
		State:     domain.RunPending,
		Metadata:  maps.Clone(plan.Metadata),
		StartedAt: time.Now().UTC(),
	}

	if err := plan.Validate(); err != nil {
		return e.finish(result, domain.RunAborted, err)
	}

	axes, acquirer, err := e.resolve(plan)
	if err != nil {
		return e.finish(result, domain.RunAborted, err)
	}

	result.State = domain.RunRunning
	e.logger.Info("run started",
		"run_id", result.ID,
		"plan", plan.Name,
		"points", plan.TotalPoints(),
	)

	var seq uint64
	it := newIterator(plan.Shape())
	for {
		// Cancellation is checked only at step boundaries.
		if err := ctx.Err(); err != nil {
			return e.finish(result, domain.RunCancelled, err)
		}

		coord, ok := it.next()
		if !ok {
			break
		}

		if err := e.setPoint(ctx, axes, coord); err != nil {
			return e.finish(result, domain.RunAborted, err)
		}

		if plan.Settle > 0 {
			if err := sleep(ctx, plan.Settle); err != nil {
				return e.finish(result, domain.RunCancelled, err)
			}
		}

		seq++
		values, err := e.acquire(ctx, acquirer, seq)
		if err != nil {
			return e.finish(result, domain.RunAborted, err)
		}

		sample := domain.Sample{
			Coordinate: coord,
			Values:     filterSignals(values, plan.Acquire.Signals),
			Timestamp:  time.Now().UTC(),
		}
		if err := sink.Accept(ctx, sample); err != nil {
			return e.finish(result, domain.RunAborted, fmt.Errorf("sink rejected sample %v: %w", coord, err))
		}
		result.Samples = append(result.Samples, sample)
		e.metrics.SamplesDelivered.Inc()
	}

	return e.finish(result, domain.RunCompleted, nil)
}

// resolve binds every sweep target and the acquisition instrument up front,
// so a missing or unavailable instrument aborts before any hardware is
// touched.
func (e *Engine) resolve(plan domain.Plan) ([]*axis, ports.Driver, error) {
	axes := make([]*axis, 0, len(plan.Sweeps))
	for _, spec := range plan.Sweeps {
		driver, err := e.resolver.Resolve(spec.Instrument)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve sweep target %s: %w", spec.Instrument, err)
		}
		axes = append(axes, &axis{spec: spec, driver: driver, lastSet: -1})
	}
	acquirer, err := e.resolver.Resolve(plan.Acquire.Instrument)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve acquisition instrument %s: %w", plan.Acquire.Instrument, err)
	}
	return axes, acquirer, nil
}

// setPoint writes the sweep values for one coordinate. Axes whose value
// index is unchanged since the previous point are skipped; re-sending an
// identical outer value on every inner iteration only burns bus time.
func (e *Engine) setPoint(ctx context.Context, axes []*axis, coord []int) error {
	for i, ax := range axes {
		idx := coord[i]
		if ax.lastSet == idx {
			continue
		}
		value := ax.spec.Values[idx]
		err := e.withRetry(ctx, func() error {
			return ax.driver.SetParameter(ctx, ax.spec.Parameter, value)
		})
		if err != nil {
			return fmt.Errorf("set %s.%s = %v: %w", ax.spec.Instrument, ax.spec.Parameter, value, err)
		}
		ax.lastSet = idx
	}
	return nil
}

// acquire runs trigger and read as one logical step. On failure it issues a
// best-effort disarm so the instrument is not left armed, then propagates.
// The step as a whole is retried on transient failures: the sequence number
// makes a duplicate trigger a no-op on the instrument side.
func (e *Engine) acquire(ctx context.Context, driver ports.Driver, seq uint64) (map[string]float64, error) {
	var values map[string]float64
	err := e.withRetry(ctx, func() error {
		if err := driver.Trigger(ctx, seq); err != nil {
			return err
		}
		var err error
		values, err = driver.Read(ctx, seq)
		return err
	})
	if err != nil {
		if disarmer, ok := driver.(ports.Disarmer); ok {
			if derr := disarmer.Disarm(ctx); derr != nil {
				e.logger.Warn("disarm after failed acquisition failed", "err", derr)
			}
		}
		return nil, fmt.Errorf("acquisition step %d: %w", seq, err)
	}
	return values, nil
}

// withRetry runs fn, retrying transient failures with exponential backoff.
// Non-transient errors propagate immediately.
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	delay := e.backoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !domain.IsTransient(err) {
			return err
		}
		if attempt >= e.retries {
			return err
		}
		e.metrics.StepRetries.Inc()
		e.logger.Debug("retrying transient failure", "attempt", attempt+1, "err", err)
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		delay *= 2
	}
}

func (e *Engine) finish(result *domain.RunResult, state domain.RunState, err error) *domain.RunResult {
	result.State = state
	result.FinishedAt = time.Now().UTC()
	if err != nil && !errors.Is(err, context.Canceled) {
		result.Err = err.Error()
	}
	e.logger.Info("run finished",
		"run_id", result.ID,
		"state", state,
		"samples", len(result.Samples),
		"err", result.Err,
	)
	return result
}

func filterSignals(values map[string]float64, signals []string) map[string]float64 {
	if len(signals) == 0 {
		return values
	}
	out := make(map[string]float64, len(signals))
	for _, name := range signals {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
