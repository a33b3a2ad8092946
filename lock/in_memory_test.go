package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ core.LockAcquirer = (*InMemoryStore)(nil)

func newTestStore(ttl time.Duration) (*InMemoryStore, *clock.FakeClock) {
	fc := clock.Fake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewInMemoryStore(func(o *Options) {
		o.TTL = ttl
		o.Clock = fc
	}), fc
}

func TestInMemoryStore_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(time.Minute)
	a := core.ConversationScope("a")

	ok, err := s.TryAcquire(ctx, a, "worker-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.TryAcquire(ctx, a, "worker-2")
	assert.False(t, ok, "held by another holder")

	ok, _ = s.TryAcquire(ctx, a, "worker-1")
	assert.True(t, ok, "re-entrant for the same holder")

	locked, _ := s.IsLocked(ctx, a)
	assert.True(t, locked)

	require.NoError(t, s.Release(ctx, a))
	locked, _ = s.IsLocked(ctx, a)
	assert.False(t, locked)
	require.NoError(t, s.Release(ctx, a), "release of a free scope is a no-op")
}

func TestInMemoryStore_ReleaseHeldSparesNewHolder(t *testing.T) {
	ctx := context.Background()
	s, fc := newTestStore(time.Minute)
	a := core.ConversationScope("a")

	ok, _ := s.TryAcquire(ctx, a, "slow")
	require.True(t, ok)
	fc.Advance(2 * time.Minute)
	n, _ := s.CleanupStaleLocks(ctx)
	require.Equal(t, 1, n)

	ok, _ = s.TryAcquire(ctx, a, "fresh")
	require.True(t, ok)

	released, err := s.ReleaseHeld(ctx, a, "slow")
	require.NoError(t, err)
	assert.False(t, released)
	locked, _ := s.IsLocked(ctx, a)
	assert.True(t, locked, "fresh holder keeps the lock")

	released, err = s.ReleaseHeld(ctx, a, "fresh")
	require.NoError(t, err)
	assert.True(t, released)
	locked, _ = s.IsLocked(ctx, a)
	assert.False(t, locked)
}

func TestInMemoryStore_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(time.Minute)

	ok, _ := s.TryAcquire(ctx, core.GlobalScope(), "sys")
	require.True(t, ok)
	ok, _ = s.TryAcquire(ctx, core.ConversationScope("a"), "w")
	assert.True(t, ok)
	ok, _ = s.TryAcquire(ctx, core.ConversationScope("b"), "w")
	assert.True(t, ok)
	ok, _ = s.TryAcquire(ctx, core.ConversationScope(""), "w")
	assert.True(t, ok, "empty chat id does not collide with the global scope")

	locked, _ := s.IsLocked(ctx, core.ConversationScope("c"))
	assert.False(t, locked)
	assert.Len(t, s.Holders(), 4)
}

func TestInMemoryStore_StaleLockReclaimedOnNextSweep(t *testing.T) {
	ctx := context.Background()
	s, fc := newTestStore(time.Minute)
	a := core.ConversationScope("a")
	b := core.ConversationScope("b")

	_, _ = s.TryAcquire(ctx, a, "w")
	fc.Advance(30 * time.Second)
	_, _ = s.TryAcquire(ctx, b, "w")

	n, err := s.CleanupStaleLocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing stale yet")

	fc.Advance(31 * time.Second)
	locked, _ := s.IsLocked(ctx, a)
	assert.True(t, locked, "stale locks stay locked until swept")

	n, err = s.CleanupStaleLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	locked, _ = s.IsLocked(ctx, a)
	assert.False(t, locked)
	locked, _ = s.IsLocked(ctx, b)
	assert.True(t, locked)

	n, _ = s.CleanupStaleLocks(ctx)
	assert.Zero(t, n, "sweep is idempotent")
}

func TestInMemoryStore_TouchPostponesStaleness(t *testing.T) {
	ctx := context.Background()
	s, fc := newTestStore(time.Minute)
	a := core.ConversationScope("a")

	assert.ErrorIs(t, s.Touch(ctx, a, "w"), ErrNotHeld)

	_, _ = s.TryAcquire(ctx, a, "w")
	assert.ErrorIs(t, s.Touch(ctx, a, "intruder"), ErrNotHeld)
	fc.Advance(50 * time.Second)
	require.NoError(t, s.Touch(ctx, a, "w"))
	fc.Advance(50 * time.Second)

	n, _ := s.CleanupStaleLocks(ctx)
	assert.Zero(t, n)
}

func TestInMemoryStore_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	scope := core.ConversationScope("x")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.TryAcquire(ctx, scope, string(rune('A'+i)))
			if err != nil {
				t.Errorf("acquire error: %v", err)
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.Equal(t, DefaultTTL, s.TTL())
}
