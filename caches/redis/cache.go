package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

const (
	// DefaultPrefix is prepended to every hashed key.
	DefaultPrefix = "gomediacache:"

	fieldURL         = "url"
	fieldResponse    = "response"
	fieldContentType = "content_type"
	fieldExpiresAt   = "expires_at"
)

// Config holds Redis cache configuration.
type Config struct {
	// Prefix is prepended to the hashed URL (defaults to "gomediacache:")
	Prefix string

	// ItemExpiration is the Redis TTL of a stored hash. It only bounds how long
	// Redis keeps the bytes and is independent of the media expiration.
	// Zero uses caches.DefaultExpiredDuration, a negative value disables it.
	ItemExpiration time.Duration
}

// Cache implements gomediacache.Cache with one Redis hash per URL.
type Cache struct {
	client redis.UniversalClient

	prefix     string
	expiration time.Duration
}

// Key returns the Redis key used for a URL.
func (c *Cache) Key(url string) string {
	return c.prefix + strconv.FormatUint(xxhash.Sum64String(url), 16)
}

// Get retrieves a cache item. A hash whose url field does not match the requested
// URL is treated as a miss.
func (c *Cache) Get(ctx context.Context, k string) (*gomediacache.CacheItem, error) {
	fields, err := c.client.HGetAll(ctx, c.Key(k)).Result()
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 || fields[fieldURL] != k {
		return nil, caches.ErrNoCacheItem
	}

	item := &gomediacache.CacheItem{
		Response:    []byte(fields[fieldResponse]),
		ContentType: fields[fieldContentType],
	}

	if v := fields[fieldExpiresAt]; v != "" && v != "0" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", fieldExpiresAt, v, err)
		}
		item.Expiration = time.UnixMilli(ms).UTC()
	}

	return item, nil
}

// Set replaces the hash for the key inside a MULTI/EXEC transaction.
func (c *Cache) Set(ctx context.Context, k string, v *gomediacache.CacheItem) error {
	var expiresAt int64
	if !v.Expiration.IsZero() {
		expiresAt = v.Expiration.UnixMilli()
	}

	key := c.Key(k)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldURL, k,
			fieldResponse, v.Response,
			fieldContentType, v.ContentType,
			fieldExpiresAt, expiresAt,
		)
		if c.expiration > 0 {
			pipe.Expire(ctx, key, c.expiration)
		}
		return nil
	})
	return err
}

// Delete removes the hash for the key.
func (c *Cache) Delete(ctx context.Context, k string) error {
	err := c.client.Del(ctx, c.Key(k)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// New creates a Redis cache over an existing client.
func New(client redis.UniversalClient, config *Config) (*Cache, error) {
	if client == nil {
		return nil, caches.ValidationError{
			Reason: "nil client",
		}
	}

	c := &Cache{
		client:     client,
		prefix:     DefaultPrefix,
		expiration: caches.DefaultExpiredDuration,
	}

	if config != nil {
		if config.Prefix != "" {
			c.prefix = config.Prefix
		}
		if config.ItemExpiration != 0 {
			c.expiration = config.ItemExpiration
		}
	}

	return c, nil
}

// Connect parses a redis:// URL and verifies the connection.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
