package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/stock-guard/internal/adapter/storage"
	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/core/retry"
)

// contendedRetry keeps retrying long enough that heavy contention on a single
// key still ends with every decrement committed.
func contendedRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  100000,
		InitialDelay: 50 * time.Microsecond,
		Multiplier:   2,
		MaxDelay:     2 * time.Millisecond,
		Jitter:       true,
		JitterMode:   retry.JitterFull,
	}
}

func newEngine(t *testing.T, s Strategy, opts ...Option) Engine {
	t.Helper()
	e, err := New(Config{Strategy: s, Retry: contendedRetry()}, storage.NewMemoryStore(), opts...)
	require.NoError(t, err)
	return e
}

var safeStrategies = []Strategy{
	StrategyCAS,
	StrategyMutexGlobal,
	StrategyMutexKey,
	StrategyOptimistic,
	StrategyPessimistic,
	StrategyAtomic,
}

func TestNoLostUpdates(t *testing.T) {
	const total = 1000

	for _, s := range safeStrategies {
		t.Run(string(s), func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, s)
			require.NoError(t, e.Initialize(ctx, "item", total))

			var successCount atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < total; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := e.Decrease(ctx, "item", 1); err != nil {
						t.Errorf("unexpected error: %v", err)
						return
					}
					successCount.Add(1)
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(total), successCount.Load())
			q, err := e.CurrentQuantity(ctx, "item")
			require.NoError(t, err)
			assert.Equal(t, int64(0), q)
		})
	}
}

func TestUnsafeBaselineLosesUpdates(t *testing.T) {
	const total = 1000
	ctx := context.Background()
	e := newEngine(t, StrategyUnsafe)
	require.NoError(t, e.Initialize(ctx, "item", total))

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Decrease(ctx, "item", 1)
		}()
	}
	wg.Wait()

	q, err := e.CurrentQuantity(ctx, "item")
	require.NoError(t, err)
	assert.Greater(t, q, int64(0), "read-pause-write should overwrite concurrent decrements")
}

func TestConservation(t *testing.T) {
	const (
		initial  = 300
		requests = 200
	)

	for _, s := range safeStrategies {
		t.Run(string(s), func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, s)
			require.NoError(t, e.Initialize(ctx, "item", initial))

			var committed, rejected atomic.Int64
			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < requests; i++ {
				amount := int64(rand.IntN(5) + 1)
				g.Go(func() error {
					err := e.Decrease(gctx, "item", amount)
					switch {
					case err == nil:
						committed.Add(amount)
					case errors.Is(err, domain.ErrInsufficientStock):
						rejected.Add(1)
					default:
						return err
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			q, err := e.CurrentQuantity(ctx, "item")
			require.NoError(t, err)
			assert.Equal(t, int64(initial)-committed.Load(), q)
			assert.GreaterOrEqual(t, q, int64(0))
		})
	}
}

func TestRejections(t *testing.T) {
	for _, s := range append(safeStrategies, StrategyUnsafe) {
		t.Run(string(s), func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, s)
			require.NoError(t, e.Initialize(ctx, "item", 5))

			err := e.Decrease(ctx, "item", 6)
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			assert.NotErrorIs(t, err, domain.ErrRetryExhausted)

			err = e.Decrease(ctx, "nonexistent", 1)
			assert.ErrorIs(t, err, domain.ErrNotFound)

			assert.ErrorIs(t, e.Decrease(ctx, "item", 0), domain.ErrInvalidAmount)
			assert.ErrorIs(t, e.Decrease(ctx, "item", -1), domain.ErrInvalidAmount)
			assert.ErrorIs(t, e.Initialize(ctx, "other", -1), domain.ErrInvalidQuantity)

			q, err := e.CurrentQuantity(ctx, "item")
			require.NoError(t, err)
			assert.Equal(t, int64(5), q, "rejections leave quantity unchanged")

			q, err = e.CurrentQuantity(ctx, "nonexistent")
			require.NoError(t, err)
			assert.Equal(t, int64(0), q)

			require.NoError(t, e.Decrease(ctx, "item", 5))
			q, _ = e.CurrentQuantity(ctx, "item")
			assert.Equal(t, int64(0), q)
		})
	}
}

func TestInitializeOverwrites(t *testing.T) {
	for _, s := range safeStrategies {
		t.Run(string(s), func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, s)
			require.NoError(t, e.Initialize(ctx, "item", 5))
			require.NoError(t, e.Decrease(ctx, "item", 2))
			require.NoError(t, e.Initialize(ctx, "item", 10))

			q, err := e.CurrentQuantity(ctx, "item")
			require.NoError(t, err)
			assert.Equal(t, int64(10), q)
		})
	}
}

func TestDecreaseDoesNotBlockOtherKeysOnlyWithPerKeyLock(t *testing.T) {
	cases := []struct {
		granularity  Granularity
		otherBlocked bool
	}{
		{GranularityPerKey, false},
		{GranularityGlobal, true},
	}

	for _, tc := range cases {
		ctx := context.Background()
		entered := make(chan string, 4)
		release := make(chan struct{})
		e := NewMutex(tc.granularity, WithHoldHook(func(ctx context.Context, key string) {
			entered <- key
			if key == "a" {
				<-release
			}
		}))
		require.NoError(t, e.Initialize(ctx, "a", 10))
		require.NoError(t, e.Initialize(ctx, "b", 10))

		firstDone := make(chan error, 1)
		go func() { firstDone <- e.Decrease(ctx, "a", 1) }()
		require.Equal(t, "a", <-entered)

		otherDone := make(chan error, 1)
		go func() { otherDone <- e.Decrease(ctx, "b", 1) }()

		select {
		case err := <-otherDone:
			require.False(t, tc.otherBlocked, "granularity %d: other key should wait for the global lock", tc.granularity)
			require.NoError(t, err)
		case <-time.After(50 * time.Millisecond):
			require.True(t, tc.otherBlocked, "granularity %d: other key blocked behind key a", tc.granularity)
		}

		close(release)
		require.NoError(t, <-firstDone)
		if tc.otherBlocked {
			require.NoError(t, <-otherDone)
		}
	}
}

func TestPerKeyLockSerializesSameKey(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	e := NewMutex(GranularityPerKey, WithHoldHook(func(ctx context.Context, key string) {
		entered <- struct{}{}
		<-release
	}))
	require.NoError(t, e.Initialize(ctx, "a", 10))

	done := make(chan error, 2)
	go func() { done <- e.Decrease(ctx, "a", 1) }()
	<-entered

	go func() { done <- e.Decrease(ctx, "a", 1) }()
	select {
	case <-entered:
		t.Fatal("second decrease entered the critical section while the first held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	q, _ := e.CurrentQuantity(ctx, "a")
	assert.Equal(t, int64(8), q)
}

func TestPerKeyLockWaitHonoursContext(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	e := NewMutex(GranularityPerKey, WithHoldHook(func(ctx context.Context, key string) {
		close(entered)
		<-release
	}))
	require.NoError(t, e.Initialize(ctx, "a", 10))

	go func() { _ = e.Decrease(ctx, "a", 1) }()
	<-entered

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := e.Decrease(waitCtx, "a", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestPessimisticStatusReadSkipsLock(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	e := NewPessimistic(storage.NewMemoryStore(), WithHoldHook(func(ctx context.Context, key string) {
		close(entered)
		<-release
	}))
	require.NoError(t, e.Initialize(ctx, "a", 10))

	done := make(chan error, 1)
	go func() { done <- e.Decrease(ctx, "a", 1) }()
	<-entered

	readCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	q, err := e.CurrentQuantity(readCtx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), q)

	close(release)
	require.NoError(t, <-done)
	q, _ = e.CurrentQuantity(ctx, "a")
	assert.Equal(t, int64(9), q)
}

func TestCASRetriesAfterLostSwap(t *testing.T) {
	ctx := context.Background()
	var e *CASEngine
	var once sync.Once
	e = NewCAS(WithHoldHook(func(ctx context.Context, key string) {
		// Sneak in one competing decrement between the read and the swap.
		once.Do(func() {
			c := e.cell(key)
			c.Add(-3)
		})
	}))
	require.NoError(t, e.Initialize(ctx, "a", 10))

	require.NoError(t, e.Decrease(ctx, "a", 5))
	q, _ := e.CurrentQuantity(ctx, "a")
	assert.Equal(t, int64(2), q)
	assert.Equal(t, int64(1), e.Conflicts())

	// After the competing write there is not enough left; the re-check rejects.
	assert.ErrorIs(t, e.Decrease(ctx, "a", 3), domain.ErrInsufficientStock)
}

func TestCASRecheckRejectsAfterConflict(t *testing.T) {
	ctx := context.Background()
	var e *CASEngine
	var once sync.Once
	e = NewCAS(WithHoldHook(func(ctx context.Context, key string) {
		once.Do(func() { e.cell(key).Store(1) })
	}))
	require.NoError(t, e.Initialize(ctx, "a", 10))

	err := e.Decrease(ctx, "a", 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	q, _ := e.CurrentQuantity(ctx, "a")
	assert.Equal(t, int64(1), q)
}

func TestStrategyNames(t *testing.T) {
	for _, s := range Strategies() {
		e := newEngine(t, s)
		assert.Equal(t, s, e.Strategy())
	}
}
