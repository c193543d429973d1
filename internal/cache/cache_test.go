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

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newTestCache[V any](ttl time.Duration) (*Cache[V], *manualClock) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[V](ttl)
	c.now = clock.Now
	return c, clock
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache[string](time.Hour)

	c.Set("key1", "value1")

	val, found := c.Get("key1")
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	val, found = c.Get("nonexistent")
	assert.False(t, found)
	assert.Empty(t, val)
}

func TestCache_Expiration(t *testing.T) {
	c, clock := newTestCache[int](time.Minute)

	c.Set("short", 1)
	c.SetWithTTL("long", 2, time.Hour)

	clock.Advance(59 * time.Second)
	_, found := c.Get("short")
	assert.True(t, found)

	clock.Advance(time.Second)
	_, found = c.Get("short")
	assert.False(t, found, "entry expires exactly at its TTL")
	v, found := c.Get("long")
	assert.True(t, found)
	assert.Equal(t, 2, v)
}

func TestCache_DeleteClearSweep(t *testing.T) {
	c, clock := newTestCache[string](time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.SetWithTTL("c", "3", time.Hour)

	c.Delete("a")
	_, found := c.Get("a")
	assert.False(t, found)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetOrLoad(t *testing.T) {
	c, clock := newTestCache[string](30 * time.Second)
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "host-a", nil
	}

	v, err := c.GetOrLoad(context.Background(), KeyHostInfo, load)
	require.NoError(t, err)
	assert.Equal(t, "host-a", v)

	v, err = c.GetOrLoad(context.Background(), KeyHostInfo, load)
	require.NoError(t, err)
	assert.Equal(t, "host-a", v)
	assert.Equal(t, 1, calls)

	clock.Advance(31 * time.Second)
	_, err = c.GetOrLoad(context.Background(), KeyHostInfo, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCache_GetOrLoadErrorNotCached(t *testing.T) {
	c, _ := newTestCache[string](time.Minute)
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCache_ConcurrentLoadsShareOne(t *testing.T) {
	c, _ := newTestCache[int](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}
