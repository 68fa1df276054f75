package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/formstate/cache"
)

// fakeClock advances one millisecond per call so access times are distinct.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func entry(id string, size int) cache.Entry {
	return cache.Entry{ID: id, Payload: make([]byte, size)}
}

func TestHot_EvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	const n = 4
	h, err := cache.NewHotStore(n, clock.Now)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		require.NoError(t, h.Put(ctx, entry(fmt.Sprintf("e%d", i), 1)))
	}
	// Touch e0 so e1 becomes the least recently accessed.
	_, ok, err := h.Get(ctx, "e0")
	require.NoError(t, err)
	require.True(t, ok)
	evictedAt, ok := h.AccessedAt("e1")
	require.True(t, ok)

	require.NoError(t, h.Put(ctx, entry("e4", 1)))

	assert.Equal(t, n, h.Len())
	_, ok, _ = h.Get(ctx, "e1")
	assert.False(t, ok, "e1 should have been evicted")
	assert.Equal(t, 1, h.Evictions())
	for _, id := range h.Keys() {
		at, ok := h.AccessedAt(id)
		require.True(t, ok)
		assert.True(t, at.After(evictedAt), "%s accessed at %v, not after %v", id, at, evictedAt)
	}
}

func TestHot_EvictFractionRoundsUp(t *testing.T) {
	ctx := context.Background()
	h, err := cache.NewHotStore(16, newFakeClock().Now)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, h.Put(ctx, entry(fmt.Sprintf("e%d", i), 1)))
	}
	gone := h.EvictFraction(0.25)
	assert.Equal(t, []string{"e0", "e1", "e2"}, gone)
	assert.Equal(t, 7, h.Len())

	assert.Empty(t, h.EvictFraction(0))
	assert.Equal(t, 7, h.Clear())
	assert.Zero(t, h.Len())
}

func TestHot_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	h, err := cache.NewHotStore(2, nil)
	require.NoError(t, err)
	require.NoError(t, h.Put(ctx, cache.Entry{ID: "a", Payload: []byte("abc")}))
	e, _, _ := h.Get(ctx, "a")
	e.Payload[0] = 'x'
	again, _, _ := h.Get(ctx, "a")
	assert.Equal(t, "abc", string(again.Payload))
	assert.Equal(t, cache.TierHot, again.Tier)
}

func TestHot_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h, err := cache.NewHotStore(4, nil)
	require.NoError(t, err)
	require.NoError(t, h.Put(ctx, cache.Entry{ID: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, h.Put(ctx, cache.Entry{ID: "new", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, h.Put(ctx, cache.Entry{ID: "forever"}))

	n, err := h.Purge(ctx, now, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"new", "forever"}, h.Keys())
}

func TestWarm_Quota(t *testing.T) {
	ctx := context.Background()
	w := cache.NewWarmStore(10)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Put(ctx, cache.Entry{ID: "a", Payload: make([]byte, 4), CreatedAt: base}))
	require.NoError(t, w.Put(ctx, cache.Entry{ID: "b", Payload: make([]byte, 4), CreatedAt: base.Add(time.Second)}))

	err := w.Put(ctx, cache.Entry{ID: "c", Payload: make([]byte, 4)})
	require.ErrorIs(t, err, cache.ErrQuotaExceeded)
	var ce *cache.CacheError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cache.TierWarm, ce.Tier)

	// Replacing an entry only counts the difference.
	require.NoError(t, w.Put(ctx, cache.Entry{ID: "b", Payload: make([]byte, 6)}))
	assert.EqualValues(t, 10, w.Used())

	n, err := w.MakeRoom(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, _ := w.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should make room")
	_, ok, _ = w.Get(ctx, "b")
	assert.True(t, ok, "rewritten entry counts as recent")
}

func TestWarm_MakeRoomFollowsWriteOrder(t *testing.T) {
	ctx := context.Background()
	w := cache.NewWarmStore(8)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	// Creation times arrive from lower tiers and say nothing about recency.
	require.NoError(t, w.Put(ctx, cache.Entry{ID: "first", Payload: make([]byte, 4), CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, w.Put(ctx, cache.Entry{ID: "second", Payload: make([]byte, 4), CreatedAt: base}))

	n, err := w.MakeRoom(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, _ := w.Get(ctx, "first")
	assert.False(t, ok)
	_, ok, _ = w.Get(ctx, "second")
	assert.True(t, ok)

	require.NoError(t, w.Delete(ctx, "second"))
	assert.EqualValues(t, 0, w.Used())
}
