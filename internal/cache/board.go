// Package cache keeps a short-lived copy of the pipeline board in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/redis/go-redis/v9"
)

const (
	boardKey      = "crm:board"
	generationKey = "crm:board:gen"
)

// BoardCache stores the last loaded board snapshot under a generation
// number. Invalidate bumps the generation, so a snapshot read from the
// database before a write can only land under a key nobody reads any more.
type BoardCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewBoardCache connects to Redis at redisURL
func NewBoardCache(redisURL string, ttl time.Duration) (*BoardCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewBoardCacheWithClient(client, ttl), nil
}

func NewBoardCacheWithClient(client *redis.Client, ttl time.Duration) *BoardCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &BoardCache{client: client, key: boardKey, ttl: ttl}
}

func (c *BoardCache) entryKey(generation int64) string {
	return fmt.Sprintf("%s:%d", c.key, generation)
}

func (c *BoardCache) generation(ctx context.Context) (int64, error) {
	generation, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read board generation: %w", err)
	}
	return generation, nil
}

// Get returns the cached snapshot and the generation it was looked up
// under. ok is false on a miss; pass the generation to Set after loading.
func (c *BoardCache) Get(ctx context.Context) (pipeline.Snapshot, int64, bool, error) {
	generation, err := c.generation(ctx)
	if err != nil {
		return pipeline.Snapshot{}, 0, false, err
	}
	raw, err := c.client.Get(ctx, c.entryKey(generation)).Bytes()
	if errors.Is(err, redis.Nil) {
		return pipeline.Snapshot{}, generation, false, nil
	}
	if err != nil {
		return pipeline.Snapshot{}, generation, false, fmt.Errorf("read board cache: %w", err)
	}

	var snapshot pipeline.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return pipeline.Snapshot{}, generation, false, fmt.Errorf("decode board cache: %w", err)
	}
	return snapshot, generation, true, nil
}

// Set stores snapshot under generation, as returned by the Get that missed.
func (c *BoardCache) Set(ctx context.Context, generation int64, snapshot pipeline.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode board cache: %w", err)
	}
	if err := c.client.Set(ctx, c.entryKey(generation), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write board cache: %w", err)
	}
	return nil
}

// Invalidate moves to the next generation after any write and drops the
// entry of the previous one.
func (c *BoardCache) Invalidate(ctx context.Context) error {
	generation, err := c.client.Incr(ctx, generationKey).Result()
	if err != nil {
		return fmt.Errorf("invalidate board cache: %w", err)
	}
	if err := c.client.Del(ctx, c.entryKey(generation-1)).Err(); err != nil {
		return fmt.Errorf("invalidate board cache: %w", err)
	}
	return nil
}

func (c *BoardCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *BoardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
