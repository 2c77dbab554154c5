package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/adjust_available.lua
var adjustAvailableScript string

// Client mirrors listing availability in Redis for cheap reads. The
// database stays authoritative; every value here may lag.
type Client struct {
	rdb          *redis.Client
	adjustScript *redis.Script
	ttl          time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded. Mirror
// entries expire after ttl; zero keeps them until overwritten.
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb, ttl), nil
}

func newClient(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{
		rdb:          rdb,
		adjustScript: redis.NewScript(adjustAvailableScript),
		ttl:          ttl,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(listingID int64) string {
	return fmt.Sprintf("inventory:%d", listingID)
}

// SetAvailable overwrites the mirrored availability of a listing
func (c *Client) SetAvailable(ctx context.Context, listingID int64, available int) error {
	key := availabilityKey(listingID)

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "available", available, "synced_at", time.Now().Unix())
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// AdjustAvailable applies delta to a mirrored listing. Listings not in the
// mirror are left alone so a partial value is never created.
func (c *Client) AdjustAvailable(ctx context.Context, listingID int64, delta int) error {
	_, err := c.adjustScript.Run(ctx, c.rdb, []string{availabilityKey(listingID)}, delta).Result()
	if err != nil {
		return fmt.Errorf("adjust availability script failed: %w", err)
	}
	return nil
}

// GetAvailable returns the mirrored availability and whether the listing
// is in the mirror at all
func (c *Client) GetAvailable(ctx context.Context, listingID int64) (int, bool, error) {
	raw, err := c.rdb.HGet(ctx, availabilityKey(listingID), "available").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	available, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt availability for listing %d: %w", listingID, err)
	}
	return available, true, nil
}

// RemoveAvailable drops a listing from the mirror
func (c *Client) RemoveAvailable(ctx context.Context, listingID int64) error {
	return c.rdb.Del(ctx, availabilityKey(listingID)).Err()
}
