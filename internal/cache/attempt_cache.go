// Package cache parks in-flight attempt sessions between requests, either
// in process memory or in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/awarelab/internal/attempt"
)

// AttemptCache stores attempt snapshots by ID. Get returns nil, nil for a
// missing or expired entry.
type AttemptCache interface {
	Set(ctx context.Context, snap attempt.Snapshot) error
	Get(ctx context.Context, id string) (*attempt.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	snap    attempt.Snapshot
	expires time.Time
}

type memoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache returns an in-process cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) AttemptCache {
	return newMemoryCache(ttl, time.Now)
}

func newMemoryCache(ttl time.Duration, now func() time.Time) *memoryCache {
	return &memoryCache{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Set(_ context.Context, snap attempt.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
		}
	}
	c.entries[snap.ID] = memoryEntry{snap: snap, expires: now.Add(c.ttl)}
	return nil
}

func (c *memoryCache) Get(_ context.Context, id string) (*attempt.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, id)
		return nil, nil
	}
	snap := e.snap
	return &snap, nil
}

func (c *memoryCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache returns a cache that stores snapshots as JSON under
// "attempt:<id>" with a sliding ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) AttemptCache {
	return &redisCache{client: client, ttl: ttl}
}

func attemptKey(id string) string { return "attempt:" + id }

func (c *redisCache) Set(ctx context.Context, snap attempt.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, attemptKey(snap.ID), data, c.ttl).Err()
}

func (c *redisCache) Get(ctx context.Context, id string) (*attempt.Snapshot, error) {
	data, err := c.client.Get(ctx, attemptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap attempt.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *redisCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, attemptKey(id)).Err()
}
