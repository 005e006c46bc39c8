package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunLockerContract runs a suite of tests to verify that a Locker
// implementation adheres to the lease semantics of the interface.
func RunLockerContract(t *testing.T, locker Locker) {
	ctx := context.Background()

	t.Run("Exclusivity", func(t *testing.T) {
		lease, err := locker.Acquire(ctx, "contract-excl", "client-a", time.Minute)
		require.NoError(t, err, "first Acquire should succeed")
		require.NotEmpty(t, lease.Token())

		_, err = locker.Acquire(ctx, "contract-excl", "client-b", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLocked, "second Acquire must fail with ErrLocked")

		require.NoError(t, lease.Release(ctx))

		lease2, err := locker.Acquire(ctx, "contract-excl", "client-b", time.Minute)
		require.NoError(t, err, "Acquire after Release should succeed")
		_ = lease2.Release(ctx)
	})

	t.Run("Independent Names", func(t *testing.T) {
		a, err := locker.Acquire(ctx, "contract-ind-a", "client-a", time.Minute)
		require.NoError(t, err)
		b, err := locker.Acquire(ctx, "contract-ind-b", "client-b", time.Minute)
		require.NoError(t, err, "locks on distinct names must not contend")
		_ = a.Release(ctx)
		_ = b.Release(ctx)
	})

	t.Run("Release Idempotent", func(t *testing.T) {
		lease, err := locker.Acquire(ctx, "contract-idem", "client-a", time.Minute)
		require.NoError(t, err)
		require.NoError(t, lease.Release(ctx))
		assert.NoError(t, lease.Release(ctx), "second Release should be a no-op")
	})
}

// RunLockerExpiryContract verifies lease-expiry behaviour. It is separate from
// RunLockerContract because some backends need their clock advanced by the
// caller; advance is invoked with the duration the test needs to elapse.
func RunLockerExpiryContract(t *testing.T, locker Locker, advance func(d time.Duration)) {
	ctx := context.Background()

	t.Run("Lease Expiry", func(t *testing.T) {
		lease, err := locker.Acquire(ctx, "contract-expiry", "client-a", 50*time.Millisecond)
		require.NoError(t, err)

		advance(120 * time.Millisecond)

		lease2, err := locker.Acquire(ctx, "contract-expiry", "client-b", time.Minute)
		require.NoError(t, err, "Acquire after lease expiry should succeed")
		_ = lease2.Release(ctx)

		select {
		case <-lease.Context().Done():
		default:
			t.Error("expired lease context should be cancelled")
		}
	})
}

// RunStoreContract runs a suite of tests to verify that a RunStore
// implementation adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		result := &domain.RunResult{
			ID:    runID,
			Plan:  "contract-plan",
			State: domain.RunCompleted,
			Samples: []domain.Sample{
				{Coordinate: []int{0}, Values: map[string]float64{"signal": 1.5}, Timestamp: time.Now().UTC()},
			},
		}

		err := store.Save(ctx, runID, result)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.RunCompleted, loaded.State)
		require.Len(t, loaded.Samples, 1)
		assert.Equal(t, []int{0}, loaded.Samples[0].Coordinate)
		assert.InDelta(t, 1.5, loaded.Samples[0].Values["signal"], 1e-9)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, runID, &domain.RunResult{ID: runID, State: domain.RunAborted})
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Load after Delete should return ErrNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, id1, &domain.RunResult{ID: id1, State: domain.RunCompleted})
		_ = store.Save(ctx, id2, &domain.RunResult{ID: id2, State: domain.RunCompleted})

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
