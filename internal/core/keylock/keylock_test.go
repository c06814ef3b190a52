package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapGetReturnsSameLockUnderRace(t *testing.T) {
	m := NewMap()
	const callers = 64

	got := make([]*Lock, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i] = m.Get("new-key")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < callers; i++ {
		require.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, m.Len())
}

func TestLockTryLockAndUnlock(t *testing.T) {
	l := NewMap().Get("k")

	require.True(t, l.TryLock())
	assert.False(t, l.TryLock(), "lock should be held")
	l.Unlock()
	assert.True(t, l.TryLock(), "lock should be free again")
	l.Unlock()
}

func TestLockRespectsContext(t *testing.T) {
	l := NewMap().Get("k")
	require.NoError(t, l.Lock(context.Background()))
	defer l.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUnlockOfUnlockedPanics(t *testing.T) {
	l := NewMap().Get("k")
	assert.Panics(t, l.Unlock)
}

func TestAcquireSerializesSameKey(t *testing.T) {
	m := NewMap()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "k")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}
