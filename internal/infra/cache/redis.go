package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto_terminal/internal/depth"
	"crypto_terminal/internal/domain"
)

// RedisCache mirrors depth ladders and open orders per symbol so other
// processes can read the terminal's views without going through the API.
// Entries expire after ttl; a stale symbol simply disappears.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache client. The connection is lazy; call Ping to check it.
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{
		client: rdb,
		ttl:    ttl,
	}
}

func depthKey(symbol string) string  { return "depth:" + strings.ToUpper(symbol) }
func ordersKey(symbol string) string { return "orders:" + strings.ToUpper(symbol) }

// Ping verifies the server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return domain.NewNetworkError("redis ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// PublishLadder stores the latest ladder of its symbol.
func (c *RedisCache) PublishLadder(ctx context.Context, l depth.Ladder) error {
	return c.set(ctx, depthKey(l.Symbol), l)
}

// PublishOrders stores the open orders of a symbol. An empty slice is stored
// as such so readers can tell "no orders" from "unknown".
func (c *RedisCache) PublishOrders(ctx context.Context, symbol string, orders []domain.Order) error {
	if orders == nil {
		orders = []domain.Order{}
	}
	return c.set(ctx, ordersKey(symbol), orders)
}

// GetLadder returns the cached ladder, or nil when absent or expired.
func (c *RedisCache) GetLadder(ctx context.Context, symbol string) (*depth.Ladder, error) {
	var l depth.Ladder
	ok, err := c.get(ctx, depthKey(symbol), &l)
	if !ok || err != nil {
		return nil, err
	}
	return &l, nil
}

// Invalidate drops both entries of a symbol, e.g. once it stops trading.
func (c *RedisCache) Invalidate(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, depthKey(symbol), ordersKey(symbol)).Err()
}

func (c *RedisCache) set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, key, b, c.ttl).Err()
}

func (c *RedisCache) get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
