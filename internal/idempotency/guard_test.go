package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard_Begin(t *testing.T) {
	guard := NewMemoryGuard(0)
	ctx := context.Background()

	fresh, err := guard.Begin(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, fresh)

	// Second delivery of the same event is a duplicate
	fresh, err = guard.Begin(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.False(t, fresh)

	// A different event ID is independent
	fresh, err = guard.Begin(ctx, "evt_2", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryGuard_ConcurrentBegin(t *testing.T) {
	guard := NewMemoryGuard(0)
	ctx := context.Background()

	const workers = 32
	var freshCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := guard.Begin(ctx, "evt_race", "customer.subscription.updated")
			assert.NoError(t, err)
			if fresh {
				freshCount.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly one delivery wins
	assert.Equal(t, int64(1), freshCount.Load())
}

func TestMemoryGuard_AbortAllowsRetry(t *testing.T) {
	guard := NewMemoryGuard(0)
	ctx := context.Background()

	fresh, err := guard.Begin(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	require.True(t, fresh)

	// Processing failed; remove the marker
	require.NoError(t, guard.Abort(ctx, "evt_1"))

	// The provider's retry gets through
	fresh, err = guard.Begin(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryGuard_SweepExpired(t *testing.T) {
	guard := NewMemoryGuard(20 * time.Millisecond)
	ctx := context.Background()

	fresh, err := guard.Begin(ctx, "evt_old", "invoice.paid")
	require.NoError(t, err)
	require.True(t, fresh)

	time.Sleep(40 * time.Millisecond)

	removed, err := guard.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// An expired marker no longer blocks re-processing
	fresh, err = guard.Begin(ctx, "evt_old", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, fresh)
}
