package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/formstate/cache"
)

func TestCold_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	c, err := cache.NewColdStore(dir, 0)
	require.NoError(t, err)

	in := cache.Entry{ID: "../odd/id", Payload: []byte("payload"), CreatedAt: created, ExpiresAt: created.Add(time.Hour)}
	require.NoError(t, c.Put(ctx, in))

	reopened, err := cache.NewColdStore(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	got, ok, err := reopened.Get(ctx, "../odd/id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.Payload, got.Payload)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, in.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, cache.TierCold, got.Tier)

	// Ids never escape the tier directory.
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, des, 1)
	assert.False(t, des[0].IsDir())
}

func TestCold_CorruptedIsDiscarded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := cache.NewColdStore(dir, 0)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, cache.Entry{ID: "x", Payload: []byte("ok")}))

	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, des, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, des[0].Name()), []byte{0xc1, 0xff, 0x00}, 0o644))

	_, ok, err := c.Get(ctx, "x")
	require.ErrorIs(t, err, cache.ErrCorrupted)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	_, ok, err = c.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCold_QuotaAndMakeRoom(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sizer, err := cache.NewColdStore(t.TempDir(), 0)
	require.NoError(t, err)
	require.NoError(t, sizer.Put(ctx, cache.Entry{ID: "a", Payload: make([]byte, 100), CreatedAt: base}))
	one := sizer.Used()

	c, err := cache.NewColdStore(t.TempDir(), 2*one)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, cache.Entry{ID: "a", Payload: make([]byte, 100), CreatedAt: base}))
	require.NoError(t, c.Put(ctx, cache.Entry{ID: "b", Payload: make([]byte, 100), CreatedAt: base.Add(time.Second)}))
	require.ErrorIs(t, c.Put(ctx, cache.Entry{ID: "c", Payload: make([]byte, 100), CreatedAt: base.Add(2 * time.Second)}), cache.ErrQuotaExceeded)

	n, err := c.MakeRoom(ctx, one)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, c.Put(ctx, cache.Entry{ID: "c", Payload: make([]byte, 100), CreatedAt: base.Add(2 * time.Second)}))
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)

	// Rewriting b makes c the least recently written, whatever CreatedAt says.
	require.NoError(t, c.Put(ctx, cache.Entry{ID: "b", Payload: make([]byte, 100), CreatedAt: base}))
	n, err = c.MakeRoom(ctx, one)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, _ = c.Get(ctx, "c")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)
}

func TestArchive_GetAsync(t *testing.T) {
	ctx := context.Background()
	a, err := cache.NewArchiveStore(t.TempDir())
	require.NoError(t, err)
	payload := []byte(strings200())
	require.NoError(t, a.Put(ctx, cache.Entry{ID: "big", Payload: payload}))
	assert.Less(t, a.Used(), int64(len(payload)), "archive entries are compressed")

	r := <-a.GetAsync(ctx, "big")
	require.NoError(t, r.Err)
	require.True(t, r.Found)
	assert.Equal(t, payload, r.Entry.Payload)
	assert.Equal(t, cache.TierArchive, r.Entry.Tier)

	r = <-a.GetAsync(ctx, "missing")
	require.NoError(t, r.Err)
	assert.False(t, r.Found)
}

func strings200() string {
	b := make([]byte, 0, 2000)
	for i := 0; i < 200; i++ {
		b = append(b, "abcdefghij"...)
	}
	return string(b)
}
