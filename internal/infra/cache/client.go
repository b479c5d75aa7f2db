// Package cache provides the Redis-backed pieces of the notification engine:
// a read-through preference cache, the realtime in-app publisher and the
// distributed lock that keeps digest sweeps exclusive.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyNamespace = "cn"

// ErrNotInitialized is returned when a Client has no backing connection.
var ErrNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Client wraps the Redis commands used by the engine.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Connect parses a redis:// URL, connects and verifies connectivity.
func Connect(ctx context.Context, url string) (*Client, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{store: raw, raw: raw}, nil
}

// NewClient wraps an existing command set. Used by tests and by callers that
// manage their own *redis.Client.
func NewClient(store cmdable) *Client {
	return &Client{store: store}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.store == nil {
		return "", ErrNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c == nil || c.store == nil {
		return false, ErrNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Del(ctx, keys...).Err()
}

func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Publish(ctx, channel, message).Err()
}

// Ping checks connectivity for health endpoints.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

// Close releases the underlying connection pool, if owned.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// PreferencesKey is the cache key for one user's preferences.
func (c *Client) PreferencesKey(userID string) string {
	return buildKey("prefs", userID)
}

// LockKey is the key guarding one named sweep.
func (c *Client) LockKey(name string) string {
	return buildKey("lock", name)
}

// RealtimeChannel is the pub/sub channel in-app notifications are published on.
func RealtimeChannel(userID string) string {
	return "notifications:" + userID
}

func buildKey(parts ...string) string {
	filtered := make([]string, 0, len(parts)+1)
	filtered = append(filtered, keyNamespace)
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return strings.Join(filtered, ":")
}
