package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSettingsCache_ReadThroughAndInvalidate(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	_, err := mem.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)
	require.NoError(t, mem.EnsureSettings(ctx, 1))

	cache := ledger.NewSettingsCache(mem, time.Minute)

	s1, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s1.RateIn.IsZero())

	// A direct store write is invisible until the entry is invalidated
	require.NoError(t, mem.SetFeeRate(ctx, 1, ledger.FeeIn, dec("3")))
	s2, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s2.RateIn.IsZero(), "cached entry still serves the old rates")

	cache.Invalidate(1)
	s3, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "3", s3.RateIn.String())
}

func TestSettingsCache_MissingTenant(t *testing.T) {
	cache := ledger.NewSettingsCache(store.NewMemory(), time.Minute)

	_, err := cache.Get(context.Background(), 99)
	assert.True(t, ledger.IsNotFound(err))
}

func TestEngineSetters_InvalidateCache(t *testing.T) {
	// The engine's setters invalidate through the cache so the next read
	// observes the new rates immediately, TTL notwithstanding.
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, engine.EnsureSettings(ctx, 1))

	s1, err := engine.Cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s1.RateIn.IsZero())

	_, err = engine.SetFeeRate(ctx, 1, ledger.FeeIn, "4")
	require.NoError(t, err)

	s2, err := engine.Cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "4", s2.RateIn.String())
}
