// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package seen remembers, across runs, which arXiv papers already have a
// library item, keyed by the versionless arXiv ID. A hit replaces the Zotero
// duplicate check for that paper, so an item deleted from the library stays
// skipped until its entry expires after the configured TTL. A miss or a
// cache failure falls through to the Zotero check; failures are reported to
// the caller to log and ignore.
package seen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

const (
	defaultPrefix = "arxiv-zotero:seen:"
	defaultTTL    = 30 * 24 * time.Hour
	pingTimeout   = 5 * time.Second
)

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Cache maps arXiv identifiers to library item keys.
type Cache struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// Open connects to the Redis server named by cfg and verifies it answers.
func Open(ctx context.Context, cfg types.CacheConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return newCache(client, cfg), nil
}

func newCache(client redisClient, cfg types.CacheConfig) *Cache {
	c := &Cache{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
	if c.prefix == "" {
		c.prefix = defaultPrefix
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	return c
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(p types.Paper) string {
	return c.prefix + p.ID
}

// Lookup returns the item key remembered for p.
func (c *Cache) Lookup(ctx context.Context, p types.Paper) (string, bool, error) {
	if p.ID == "" {
		return "", false, nil
	}
	v, err := c.client.Get(ctx, c.key(p)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("seen cache lookup %s: %w", p.ID, err)
	}
	return v, true, nil
}

// Remember records that p lives in the library as itemKey.
func (c *Cache) Remember(ctx context.Context, p types.Paper, itemKey string) error {
	if p.ID == "" {
		return nil
	}
	if err := c.client.Set(ctx, c.key(p), itemKey, c.ttl).Err(); err != nil {
		return fmt.Errorf("seen cache store %s: %w", p.ID, err)
	}
	return nil
}
