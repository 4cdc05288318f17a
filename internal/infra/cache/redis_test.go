package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_terminal/internal/depth"
	"crypto_terminal/internal/domain"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "depth:BTCUSDT", depthKey("btcusdt"))
	assert.Equal(t, "orders:ETHUSDT", ordersKey("ETHUSDT"))
}

func TestPing_Unreachable(t *testing.T) {
	c := NewRedisCache("127.0.0.1:1", "", 0, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Ping(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsRetriable(err))
}

// Runs only when TERMINAL_TEST_REDIS points at a disposable server.
func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("TERMINAL_TEST_REDIS")
	if addr == "" {
		t.Skip("TERMINAL_TEST_REDIS not set")
	}
	ctx := context.Background()
	c := NewRedisCache(addr, "", 0, time.Minute)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))
	t.Cleanup(func() { _ = c.Invalidate(ctx, "TESTUSDT") })

	got, err := c.GetLadder(ctx, "TESTUSDT")
	require.NoError(t, err)
	assert.Nil(t, got)

	ladder := depth.Ladder{
		Symbol: "TESTUSDT",
		Bids:   []domain.DepthLevel{{Price: "10.00", Quantity: "1.5"}},
		Spread: "0.01",
	}
	require.NoError(t, c.PublishLadder(ctx, ladder))
	got, err = c.GetLadder(ctx, "testusdt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ladder, *got)

	orders := []domain.Order{{OrderID: "1", Symbol: "TESTUSDT", Price: decimal.NewFromInt(10), OrigQty: decimal.NewFromInt(2)}}
	require.NoError(t, c.PublishOrders(ctx, "TESTUSDT", orders))
	var gotOrders []domain.Order
	ok, err := c.get(ctx, ordersKey("TESTUSDT"), &gotOrders)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, gotOrders, 1)
	assert.True(t, gotOrders[0].Price.Equal(decimal.NewFromInt(10)))

	require.NoError(t, c.PublishOrders(ctx, "TESTUSDT", nil))
	gotOrders = nil
	ok, err = c.get(ctx, ordersKey("TESTUSDT"), &gotOrders)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, gotOrders)
	assert.Empty(t, gotOrders)

	require.NoError(t, c.Invalidate(ctx, "TESTUSDT"))
	got, err = c.GetLadder(ctx, "TESTUSDT")
	require.NoError(t, err)
	assert.Nil(t, got)
}
