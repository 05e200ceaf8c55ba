package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_MissDoesNotTripBreaker(t *testing.T) {
	store := newMemoryStore()
	cache, err := NewRedisCache(store, time.Minute, nil)
	require.NoError(t, err)

	for range breakerTrips * 2 {
		_, ok, err := cache.Get(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateClosed, cache.BreakerState())
}

func TestRedisCache_OpenBreakerActsAsEmptyCache(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	cache, err := NewRedisCache(store, time.Minute, nil)
	require.NoError(t, err)

	for range breakerTrips {
		_, _, err := cache.Get(context.Background(), uuid.New())
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, cache.BreakerState())

	calls := store.gets
	pos, ok, err := cache.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, pos)
	assert.Equal(t, calls, store.gets, "open breaker must not reach redis")

	require.NoError(t, cache.Set(context.Background(), Position{ProductID: uuid.New(), AverageCost: decimal.NewFromInt(5)}))
	assert.Empty(t, store.data, "writes are dropped while open")
}

func TestRedisCache_RoundTrip(t *testing.T) {
	store := newMemoryStore()
	cache, err := NewRedisCache(store, time.Minute, nil)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, cache.Set(context.Background(), Position{ProductID: id, QuantityOnHand: 3, AverageCost: decimal.RequireFromString("12.50")}))

	got, ok, err := cache.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.QuantityOnHand)
	assert.Equal(t, "12.50", got.AverageCost.StringFixed(2))

	require.NoError(t, cache.Invalidate(context.Background(), id))
	_, ok, err = cache.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}
