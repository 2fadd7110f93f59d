// Package storage provides the fiat-rate cache: the only persistent state the
// service keeps. Samples are appended once per calendar day and deduplicated
// on read, so concurrent writers for overlapping months are harmless.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/types"
)

// RateCache stores one fiat-rate snapshot per calendar day.
type RateCache interface {
	// Read returns the cached samples for days in [from, to], inclusive,
	// sorted by date, at most one sample per day.
	Read(ctx context.Context, from, to time.Time) ([]types.RateSample, error)
	// Append stores samples for days that do not have one yet. Existing days
	// are left untouched.
	Append(ctx context.Context, samples []types.RateSample) error
}

const rateKeyPrefix = "fiat:rates:"

func rateKey(day time.Time) string {
	return rateKeyPrefix + day.UTC().Format("2006-01-02")
}

// RedisRateCache is the production RateCache backed by Redis.
type RedisRateCache struct {
	client *redis.Client
}

// NewRedisRateCache creates a Redis-backed rate cache.
func NewRedisRateCache(client *redis.Client) *RedisRateCache {
	return &RedisRateCache{client: client}
}

func (c *RedisRateCache) Read(ctx context.Context, from, to time.Time) ([]types.RateSample, error) {
	from = types.Day(from)
	to = types.Day(to)

	var samples []types.RateSample
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		payload, err := c.client.Get(ctx, rateKey(day)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read rate cache for %s: %w", day.Format("2006-01-02"), err)
		}

		var rates map[string]decimal.Decimal
		if err := json.Unmarshal([]byte(payload), &rates); err != nil {
			return nil, fmt.Errorf("decode rate cache for %s: %w", day.Format("2006-01-02"), err)
		}
		samples = append(samples, types.RateSample{Date: day, Rates: rates})
	}
	return samples, nil
}

func (c *RedisRateCache) Append(ctx context.Context, samples []types.RateSample) error {
	for _, sample := range samples {
		payload, err := json.Marshal(sample.Rates)
		if err != nil {
			return fmt.Errorf("encode rate sample: %w", err)
		}
		// SetNX keeps the first writer's sample; racing duplicates are dropped.
		if err := c.client.SetNX(ctx, rateKey(sample.Date), payload, 0).Err(); err != nil {
			return fmt.Errorf("append rate sample for %s: %w", sample.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}

// MemoryRateCache is an in-process RateCache used in tests and as a fallback
// when no Redis is configured.
type MemoryRateCache struct {
	mu      sync.RWMutex
	samples map[string]map[string]decimal.Decimal
}

// NewMemoryRateCache creates an empty in-memory rate cache.
func NewMemoryRateCache() *MemoryRateCache {
	return &MemoryRateCache{samples: make(map[string]map[string]decimal.Decimal)}
}

func (c *MemoryRateCache) Read(ctx context.Context, from, to time.Time) ([]types.RateSample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	from = types.Day(from)
	to = types.Day(to)

	var samples []types.RateSample
	for key, rates := range c.samples {
		day, err := time.ParseInLocation("2006-01-02", key, time.UTC)
		if err != nil {
			continue
		}
		if day.Before(from) || day.After(to) {
			continue
		}
		copied := make(map[string]decimal.Decimal, len(rates))
		for symbol, rate := range rates {
			copied[symbol] = rate
		}
		samples = append(samples, types.RateSample{Date: day, Rates: copied})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Date.Before(samples[j].Date) })
	return samples, nil
}

func (c *MemoryRateCache) Append(ctx context.Context, samples []types.RateSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sample := range samples {
		key := types.Day(sample.Date).Format("2006-01-02")
		if _, exists := c.samples[key]; exists {
			continue
		}
		copied := make(map[string]decimal.Decimal, len(sample.Rates))
		for symbol, rate := range sample.Rates {
			copied[symbol] = rate
		}
		c.samples[key] = copied
	}
	return nil
}
