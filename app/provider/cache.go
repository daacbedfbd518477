package provider

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

// ResultCache stores encoded search results by key.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a ResultCache backed by Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache parses redisURL and verifies connectivity.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Cached serves repeated queries from a ResultCache. Cache errors never
// fail a search; they only cost a provider call.
type Cached struct {
	next  Provider
	cache ResultCache
	ttl   time.Duration
}

func NewCached(next Provider, cache ResultCache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{next: next, cache: cache, ttl: ttl}
}

func (c *Cached) Name() string {
	return c.next.Name()
}

func (c *Cached) Search(ctx context.Context, q Query) ([]jobs.Record, error) {
	key := CacheKey(c.next.Name(), q)

	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("Search cache read failed", "key", key, "error", err)
	} else if ok {
		var entries []cacheEntry
		if err := json.Unmarshal(data, &entries); err == nil {
			slog.Debug("Search cache hit", "key", key, "count", len(entries))
			return fromCacheEntries(entries), nil
		}
	}

	records, err := c.next.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	if data, err := json.Marshal(toCacheEntries(records)); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			slog.Warn("Search cache write failed", "key", key, "error", err)
		}
	}
	return records, nil
}

// cacheEntry keeps the extraction text that the record's JSON form omits.
type cacheEntry struct {
	Record      jobs.Record `json:"record"`
	ExtractText string      `json:"extract_text,omitempty"`
}

func toCacheEntries(records []jobs.Record) []cacheEntry {
	entries := make([]cacheEntry, len(records))
	for i, r := range records {
		entries[i] = cacheEntry{Record: r, ExtractText: r.ExtractText}
	}
	return entries
}

func fromCacheEntries(entries []cacheEntry) []jobs.Record {
	records := make([]jobs.Record, len(entries))
	for i, e := range entries {
		records[i] = e.Record
		records[i].ExtractText = e.ExtractText
	}
	return records
}

// CacheKey identifies a query for a given provider.
func CacheKey(provider string, q Query) string {
	raw := strings.Join([]string{
		provider,
		strings.ToLower(strings.TrimSpace(q.Keyword)),
		strings.ToLower(q.Location),
		strings.ToLower(q.Country),
		strings.ToLower(q.Language),
		fmt.Sprint(q.Page),
	}, "\x1f")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("jobs:search:%x", hash[:12])
}
