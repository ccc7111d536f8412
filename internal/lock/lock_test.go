package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLockRunsFunction(t *testing.T) {
	s := New()
	ran := false
	err := s.WithLock(context.Background(), "k", time.Second, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 0, s.trackedKeys())
}

func TestWithLockRejectsEmptyKey(t *testing.T) {
	s := New()
	err := s.WithLock(context.Background(), "", time.Second, func() error { return nil })
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestMutualExclusion(t *testing.T) {
	s := New()
	var inside int32
	var overlapped int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithLock(context.Background(), "same-key", 5*time.Second, func() error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlapped), "two callers were inside the critical section at once")
	assert.Equal(t, 0, s.trackedKeys())
}

func TestFIFOFairness(t *testing.T) {
	s := New()

	// First caller holds the lock while the queue builds up behind it.
	holderEntered := make(chan struct{})
	releaseHolder := make(chan struct{})
	go func() {
		_ = s.WithLock(context.Background(), "k", 5*time.Second, func() error {
			close(holderEntered)
			<-releaseHolder
			return nil
		})
	}()
	<-holderEntered

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := s.WithLock(context.Background(), "k", 5*time.Second, func() error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}(i)
		// Give each waiter time to enqueue before starting the next so
		// that arrival order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}
	close(releaseHolder)
	wg.Wait()

	require.Len(t, order, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestErrorPropagatesAndLockIsReleased(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	err := s.WithLock(context.Background(), "k", time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// A follow-up acquisition must succeed without any cleanup.
	err = s.WithLock(context.Background(), "k", time.Second, func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, 0, s.trackedKeys())
}

func TestPanicReleasesLock(t *testing.T) {
	s := New()
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
		}()
		_ = s.WithLock(context.Background(), "k", time.Second, func() error {
			panic("action blew up")
		})
	}()

	err := s.WithLock(context.Background(), "k", time.Second, func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, 0, s.trackedKeys())
}

func TestTimeoutWhileQueued(t *testing.T) {
	s := New()
	holderEntered := make(chan struct{})
	go func() {
		_ = s.WithLock(context.Background(), "K", 5*time.Second, func() error {
			close(holderEntered)
			time.Sleep(200 * time.Millisecond)
			return nil
		})
	}()
	<-holderEntered

	start := time.Now()
	err := s.WithLock(context.Background(), "K", 50*time.Millisecond, func() error {
		t.Error("action must not run after a timeout")
		return nil
	})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	// The waiter must give up at ~50ms, not after the holder's 200ms.
	assert.Less(t, elapsed, 150*time.Millisecond)

	// Once the holder finishes the key must be fully cleaned up.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 0, s.trackedKeys())
}

func TestContextCancellationWhileQueued(t *testing.T) {
	s := New()
	holderEntered := make(chan struct{})
	releaseHolder := make(chan struct{})
	go func() {
		_ = s.WithLock(context.Background(), "k", 5*time.Second, func() error {
			close(holderEntered)
			<-releaseHolder
			return nil
		})
	}()
	<-holderEntered

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := s.WithLock(ctx, "k", 5*time.Second, func() error {
		t.Error("action must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	close(releaseHolder)
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	s := New()
	aEntered := make(chan struct{})
	releaseA := make(chan struct{})
	go func() {
		_ = s.WithLock(context.Background(), "a", 5*time.Second, func() error {
			close(aEntered)
			<-releaseA
			return nil
		})
	}()
	<-aEntered

	// Key "b" must be acquirable instantly while "a" is held.
	done := make(chan error, 1)
	go func() {
		done <- s.WithLock(context.Background(), "b", 100*time.Millisecond, func() error { return nil })
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lock on independent key blocked")
	}
	close(releaseA)
}

func TestStatsCounters(t *testing.T) {
	s := New()
	require.Equal(t, Stats{}, s.Stats())

	for i := 0; i < 3; i++ {
		err := s.WithLock(context.Background(), "k", time.Second, func() error { return nil })
		require.NoError(t, err)
	}
	st := s.Stats()
	assert.Equal(t, uint64(3), st.TotalAcquisitions)
	assert.Equal(t, 0, st.ActiveLocks)

	// While a lock is held it shows up in ActiveLocks.
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithLock(context.Background(), "held", time.Second, func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	assert.Equal(t, 1, s.Stats().ActiveLocks)
	close(release)
}

func TestIndependentInstances(t *testing.T) {
	a := New()
	b := New()
	aEntered := make(chan struct{})
	releaseA := make(chan struct{})
	go func() {
		_ = a.WithLock(context.Background(), "k", time.Second, func() error {
			close(aEntered)
			<-releaseA
			return nil
		})
	}()
	<-aEntered
	// Same key on a different instance is unrelated.
	err := b.WithLock(context.Background(), "k", 50*time.Millisecond, func() error { return nil })
	assert.NoError(t, err)
	close(releaseA)
}
