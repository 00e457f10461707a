package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"ai-image-detector/internal/vision"
)

// ResultCache keeps detection results keyed by model tag and image digest.
// A deterministic model gives the same result for the same bytes.
type ResultCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewResultCache(client *redisv9.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ResultCache) Get(ctx context.Context, key string) (*vision.Result, bool, error) {
	raw, err := c.client.Get(ctx, resultKey(key)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get result failed: %w", err)
	}

	var result vision.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached result failed: %w", err)
	}
	return &result, true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, result *vision.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result cache failed: %w", err)
	}
	if err := c.client.Set(ctx, resultKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set result failed: %w", err)
	}
	return nil
}

func (c *ResultCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, resultKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete result failed: %w", err)
	}
	return nil
}

func resultKey(key string) string {
	return "detector:result:" + key
}
