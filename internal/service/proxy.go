// Package service wires the TMDB proxy: cache lookup first, then the
// rate-limited upstream client, then cache population.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/poplist/api/internal/repository"
)

// CacheStore is the persistence half of the proxy. Implemented by
// repository.CacheRepo; tests substitute an in-memory map.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Fetcher is the upstream half of the proxy. Implemented by tmdb.Client.
type Fetcher interface {
	Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error)
}

// TMDBProxy shields the rate-limited queue from redundant load: identical
// requests within the TTL window are served from the cache and never reach
// the upstream.
type TMDBProxy struct {
	cache CacheStore
	fetch Fetcher
	ttl   time.Duration
}

// NewTMDBProxy builds a proxy with the given cache TTL (default 7 days).
func NewTMDBProxy(cache CacheStore, fetch Fetcher, ttl time.Duration) *TMDBProxy {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TMDBProxy{cache: cache, fetch: fetch, ttl: ttl}
}

// BuildCacheKey derives the cache key for a request. url.Values.Encode sorts
// parameters by key, so two logically identical requests with differently
// ordered parameters collide to the same key.
func BuildCacheKey(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}

// Get serves a TMDB request: cache hit returns immediately with no queue
// involvement; a miss goes through the rate-limited client and the result is
// written back before returning. Cache-layer failures are logged and degrade
// to a miss; they never break the request.
func (p *TMDBProxy) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	key := BuildCacheKey(endpoint, params)

	payload, err := p.cache.Get(ctx, key)
	if err == nil {
		return json.RawMessage(payload), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.Printf("tmdb-proxy: cache get failed for %s: %v", key, err)
	}

	body, err := p.fetch.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Save(ctx, key, body, p.ttl); err != nil {
		log.Printf("tmdb-proxy: cache save failed for %s: %v", key, err)
	}
	return body, nil
}
