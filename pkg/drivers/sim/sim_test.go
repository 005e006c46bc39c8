package sim_test

import (
	"context"
	"testing"

	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/drivers/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected(t *testing.T) *sim.Driver {
	t.Helper()
	d := sim.New(sim.Settings{Seed: 7, MinFrequency: 1e9, MaxFrequency: 6e9})
	require.NoError(t, d.Connect(context.Background()))
	return d
}

func TestFromSettings(t *testing.T) {
	d, err := sim.FromSettings(map[string]any{
		"seed":          42,
		"noise":         0.01,
		"min_frequency": 1e9,
		"max_frequency": 6e9,
	})
	require.NoError(t, err)
	require.NotNil(t, d)

	var freq domain.ParameterDescriptor
	for _, desc := range d.Parameters() {
		if desc.Name == "frequency" {
			freq = desc
		}
	}
	assert.Equal(t, 1e9, freq.Min)
	assert.Equal(t, 6e9, freq.Max)
}

func TestFromSettingsRejectsBadTypes(t *testing.T) {
	_, err := sim.FromSettings(map[string]any{"seed": []string{"not", "a", "seed"}})
	assert.Error(t, err)
}

func TestOperationsRequireConnection(t *testing.T) {
	d := sim.New(sim.Settings{})
	ctx := context.Background()

	assert.ErrorIs(t, d.Ping(ctx), domain.ErrCommunication)
	assert.ErrorIs(t, d.SetParameter(ctx, "power", -10.0), domain.ErrCommunication)
	_, err := d.GetParameter(ctx, "power")
	assert.ErrorIs(t, err, domain.ErrCommunication)
	assert.ErrorIs(t, d.Trigger(ctx, 1), domain.ErrCommunication)

	require.NoError(t, d.Connect(ctx))
	assert.NoError(t, d.Ping(ctx))
}

func TestSetParameterValidatesBounds(t *testing.T) {
	d := connected(t)
	ctx := context.Background()

	require.NoError(t, d.SetParameter(ctx, "frequency", 2e9))
	assert.ErrorIs(t, d.SetParameter(ctx, "frequency", 7e9), domain.ErrInvalidValue)
	assert.ErrorIs(t, d.SetParameter(ctx, "output", "standby"), domain.ErrInvalidValue)
	assert.ErrorIs(t, d.SetParameter(ctx, "bogus", 1.0), domain.ErrInvalidValue)

	value, err := d.GetParameter(ctx, "frequency")
	require.NoError(t, err)
	assert.Equal(t, 2e9, value, "a rejected write leaves the parameter unchanged")
}

func TestTriggerIgnoresStaleSequence(t *testing.T) {
	d := connected(t)
	ctx := context.Background()
	require.NoError(t, d.SetParameter(ctx, "output", "on"))

	require.NoError(t, d.Trigger(ctx, 1))
	first, err := d.Read(ctx, 1)
	require.NoError(t, err)

	// A retried trigger for the same sequence must not re-arm.
	require.NoError(t, d.Trigger(ctx, 1))
	again, err := d.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, again, "re-reading the same sequence returns the cached payload")
}

func TestReadRejectsStaleSequence(t *testing.T) {
	d := connected(t)
	ctx := context.Background()

	require.NoError(t, d.Trigger(ctx, 1))
	require.NoError(t, d.Trigger(ctx, 2))

	_, err := d.Read(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrCommunication)

	_, err = d.Read(ctx, 2)
	assert.NoError(t, err)
}

func TestReadIsDeterministicPerSeed(t *testing.T) {
	ctx := context.Background()
	read := func() map[string]float64 {
		d := sim.New(sim.Settings{Seed: 11, Noise: 0.1})
		require.NoError(t, d.Connect(ctx))
		require.NoError(t, d.SetParameter(ctx, "output", "on"))
		require.NoError(t, d.SetParameter(ctx, "frequency", 10e9))
		require.NoError(t, d.Trigger(ctx, 1))
		values, err := d.Read(ctx, 1)
		require.NoError(t, err)
		return values
	}

	assert.Equal(t, read(), read())
}

func TestOutputOffSilencesSignal(t *testing.T) {
	d := connected(t)
	ctx := context.Background()

	require.NoError(t, d.Trigger(ctx, 1))
	values, err := d.Read(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, values["i"], "output defaults to off")
	assert.Zero(t, values["q"])
}

func TestCloseDisablesOutput(t *testing.T) {
	d := connected(t)
	ctx := context.Background()
	require.NoError(t, d.SetParameter(ctx, "output", "on"))

	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Connect(ctx))

	value, err := d.GetParameter(ctx, "output")
	require.NoError(t, err)
	assert.Equal(t, "off", value)
}
