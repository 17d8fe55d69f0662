package cache

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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func countingLoader(calls *atomic.Int32) Loader[int] {
	return func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func TestGetServesFromMemoryWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTL[int](5*time.Second, WithClock[int](clock.Now))
	var calls atomic.Int32

	v, cached, err := c.Get(context.Background(), "users", countingLoader(&calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, v)

	clock.Advance(4999 * time.Millisecond)
	v, cached, err = c.Get(context.Background(), "users", countingLoader(&calls))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRefreshesAtTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTL[int](5*time.Second, WithClock[int](clock.Now))
	var calls atomic.Int32

	_, _, err := c.Get(context.Background(), "users", countingLoader(&calls))
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	v, cached, err := c.Get(context.Background(), "users", countingLoader(&calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetDoesNotStoreFailedLoads(t *testing.T) {
	c := NewTTL[int](time.Minute)
	boom := errors.New("boom")

	_, _, err := c.Get(context.Background(), "users", func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	var calls atomic.Int32
	v, cached, err := c.Get(context.Background(), "users", countingLoader(&calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, v)
}

func TestGetKeepsScopesIndependent(t *testing.T) {
	c := NewTTL[string](time.Minute)

	_, _, err := c.Get(context.Background(), "north", func(context.Context) (string, error) { return "n", nil })
	require.NoError(t, err)
	v, cached, err := c.Get(context.Background(), "south", func(context.Context) (string, error) { return "s", nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "s", v)
	assert.Equal(t, 2, c.Len())
}

func TestConcurrentMissesShareOneRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTL[int](5*time.Second, WithClock[int](clock.Now))

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.Get(context.Background(), "users", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetReturnsWhenCallerGivesUp(t *testing.T) {
	c := NewTTL[int](time.Minute)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Get(ctx, "users", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestObserverSeesHitsAndMisses(t *testing.T) {
	var hits, misses int
	c := NewTTL[int](time.Minute, WithObserver[int](func(_ string, hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		_, _, err := c.Get(context.Background(), "users", countingLoader(&calls))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, misses)
	assert.Equal(t, 2, hits)
}
