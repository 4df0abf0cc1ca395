package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLRU(size int, ttl time.Duration) (*LRU[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(3, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	// touch a so b becomes least recently used
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", "4")

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "%s should be present", k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestLRU_SetExistingRefreshesRecency(t *testing.T) {
	c, _ := newTestLRU(2, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "updated")
	c.Set("c", "3")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRU_TTLExpiryRemovesEntry(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("k", "v")

	clock.advance(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.advance(31 * time.Second)
	v, ok := c.Get("k")
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c, _ := newTestLRU(5, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := NewLRU[int](50, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set(Key("k", string(rune('a'+j%26))), i)
				c.Get(Key("k", string(rune('a'+(j+i)%26))))
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}

type memStore struct {
	data    map[string][]byte
	failGet bool
	failSet bool
	sets    int
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.failGet {
		return nil, false, errors.New("connection refused")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.sets++
	if m.failSet {
		return errors.New("connection refused")
	}
	m.data[key] = value
	return nil
}

func TestHybrid_WritesBothAndReadsDurableFirst(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lru := NewLRU[[]float32](10, 0)
	h := NewHybrid(lru, store, time.Hour)

	h.Set(ctx, "k", []float32{0.5, 1})
	assert.Equal(t, 1, store.sets)
	_, inLRU := lru.Get("k")
	assert.True(t, inLRU)

	// durable store wins over a stale LRU value
	store.data["k"] = []byte("[2,3]")
	v, ok := h.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []float32{2, 3}, v)
}

func TestHybrid_FallsBackToLRUOnStoreFaults(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failGet, store.failSet = true, true
	h := NewHybrid(NewLRU[string](10, 0), store, 0)

	h.Set(ctx, "k", "v")
	v, ok := h.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = h.Get(ctx, "missing")
	assert.False(t, ok)
}

type panickyStore struct{}

func (panickyStore) Get(context.Context, string) ([]byte, bool, error) { panic("boom") }
func (panickyStore) Set(context.Context, string, []byte, time.Duration) error {
	panic("boom")
}

func TestHybrid_SwallowsStorePanics(t *testing.T) {
	ctx := context.Background()
	h := NewHybrid(NewLRU[string](10, 0), panickyStore{}, 0)

	assert.NotPanics(t, func() {
		h.Set(ctx, "k", "v")
		v, ok := h.Get(ctx, "k")
		assert.True(t, ok)
		assert.Equal(t, "v", v)
	})
}

func TestHybrid_NilStoreIsLRUOnly(t *testing.T) {
	ctx := context.Background()
	h := NewHybrid[string](NewLRU[string](1, 0), nil, 0)
	h.Set(ctx, "a", "1")
	h.Set(ctx, "b", "2")
	_, ok := h.Get(ctx, "a")
	assert.False(t, ok)
}
