package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver is a minimal driver double whose connect/ping behavior is
// scripted per test.
type stubDriver struct {
	mu         sync.Mutex
	connectErr error
	pingErr    error
	closed     bool
	params     []domain.ParameterDescriptor
	values     map[string]any
}

func (d *stubDriver) Connect(ctx context.Context) error { return d.connectErr }

func (d *stubDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *stubDriver) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pingErr
}

func (d *stubDriver) setPingErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pingErr = err
}

func (d *stubDriver) Parameters() []domain.ParameterDescriptor { return d.params }

func (d *stubDriver) SetParameter(ctx context.Context, name string, value any) error { return nil }

func (d *stubDriver) GetParameter(ctx context.Context, name string) (any, error) {
	return d.values[name], nil
}

func (d *stubDriver) Trigger(ctx context.Context, seq uint64) error { return nil }

func (d *stubDriver) Read(ctx context.Context, seq uint64) (map[string]float64, error) {
	return nil, nil
}

func TestRegisterAndResolve(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	h, err := reg.Register(ctx, "lo", &stubDriver{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, h.State())

	resolved, err := reg.Resolve("lo")
	require.NoError(t, err)
	assert.Same(t, h, resolved)
}

func TestRegisterDuplicateName(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	_, err := reg.Register(ctx, "lo", &stubDriver{})
	require.NoError(t, err)

	_, err = reg.Register(ctx, "lo", &stubDriver{})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
}

func TestRegisterConnectFailure(t *testing.T) {
	reg := registry.New()
	driver := &stubDriver{connectErr: errors.New("no route to instrument")}

	h, err := reg.Register(context.Background(), "lo", driver)
	require.Error(t, err)
	require.NotNil(t, h, "a failed connect still registers the handle for inspection")
	assert.Equal(t, domain.StateFaulted, h.State())

	_, err = reg.Resolve("lo")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestResolveUnknownName(t *testing.T) {
	reg := registry.New()

	_, err := reg.Resolve("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()
	driver := &stubDriver{}

	_, err := reg.Register(ctx, "lo", driver)
	require.NoError(t, err)

	require.NoError(t, reg.Release(ctx, "lo"))
	assert.True(t, driver.closed)

	assert.NoError(t, reg.Release(ctx, "lo"), "releasing twice is a no-op")
	assert.NoError(t, reg.Release(ctx, "never-registered"))

	_, err = reg.Resolve("lo")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHealthCheckFaultsAndRecovers(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()
	driver := &stubDriver{}

	h, err := reg.Register(ctx, "lo", driver)
	require.NoError(t, err)

	driver.setPingErr(errors.New("bus hung"))
	assert.False(t, reg.HealthCheck(ctx, "lo"))
	assert.Equal(t, domain.StateFaulted, h.State())

	_, err = reg.Resolve("lo")
	assert.ErrorIs(t, err, domain.ErrUnavailable, "a faulted instrument does not resolve")

	driver.setPingErr(nil)
	assert.True(t, reg.HealthCheck(ctx, "lo"))
	assert.Equal(t, domain.StateReady, h.State(), "a passing probe restores a faulted handle")

	_, err = reg.Resolve("lo")
	assert.NoError(t, err)
}

func TestHealthCheckUnknownName(t *testing.T) {
	reg := registry.New()

	assert.False(t, reg.HealthCheck(context.Background(), "ghost"))
}

func TestSnapshotCollectsGettableParameters(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	lo := &stubDriver{
		params: []domain.ParameterDescriptor{
			{Name: "frequency", Kind: domain.KindNumeric, Gettable: true},
			{Name: "arm", Kind: domain.KindString, Gettable: false},
		},
		values: map[string]any{"frequency": 2e9, "arm": "armed"},
	}
	faulted := &stubDriver{connectErr: errors.New("unplugged")}

	_, err := reg.Register(ctx, "lo", lo)
	require.NoError(t, err)
	_, _ = reg.Register(ctx, "broken", faulted)

	snapshot := reg.Snapshot(ctx)

	require.Contains(t, snapshot, "lo")
	assert.Equal(t, map[string]any{"frequency": 2e9}, snapshot["lo"], "write-only parameters are excluded")
	assert.NotContains(t, snapshot, "broken", "unusable instruments are skipped")
}

func TestClose(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()
	a := &stubDriver{}
	b := &stubDriver{}

	_, err := reg.Register(ctx, "a", a)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "b", b)
	require.NoError(t, err)

	require.NoError(t, reg.Close(ctx))
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Empty(t, reg.Names())
}
