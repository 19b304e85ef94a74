package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Symbol string    `json:"symbol"`
	Values []float64 `json:"values"`
}

func TestMemoryCache_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", entry{Symbol: "AAPL", Values: []float64{1, 2}}, time.Minute))
	got, err := GetTyped[entry](ctx, mc, "k")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, []float64{1, 2}, got.Values)

	now = now.Add(2 * time.Minute)
	_, err = GetTyped[entry](ctx, mc, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	now = now.Add(time.Second)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestLayeredCache_PromotesRemoteHits(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemorySize(10))
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", entry{Symbol: "MSFT"}, time.Minute))
	got, err := GetTyped[entry](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", got.Symbol)

	// the value now lives in L1 even after L2 loses it
	require.NoError(t, remote.Delete(ctx, "k"))
	got, err = GetTyped[entry](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", got.Symbol)

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = GetTyped[entry](ctx, lc, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLayeredCache_WriteThrough(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote)
	defer lc.Close()

	require.NoError(t, lc.Set(ctx, "k", "v", time.Minute))
	ok, err := remote.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "anomaly:AAPL", GenerateKey("anomaly", "AAPL"))
	assert.Equal(t, "anomaly:AAPL:60", GenerateKeyWithParams("anomaly", "AAPL", 60))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashKey(nil))
}
