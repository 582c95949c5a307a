package config

import (
	"strings"
	"time"
)

// BrowseCacheConfig configures the Redis response cache applied to public,
// unauthenticated browse routes (discoverable watchlists). TMDB proxy
// responses are cached separately in the database and never go through this
// layer.
type BrowseCacheConfig struct {
	Enabled      bool
	Methods      map[string]bool // HTTP methods eligible for caching
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int // responses larger than this are served but not stored
}

// LoadBrowseCacheConfig reads cache settings with defaults suitable for
// near-static public listings.
func LoadBrowseCacheConfig() BrowseCacheConfig {
	return BrowseCacheConfig{
		Enabled:      envBool("BROWSE_CACHE_ENABLED", true),
		Methods:      parseMethods(getenv("BROWSE_CACHE_METHODS", "GET")),
		TTL:          envDur("BROWSE_CACHE_TTL", time.Minute),
		Prefix:       getenv("BROWSE_CACHE_PREFIX", "cache:browse"),
		MaxBodyBytes: envInt("BROWSE_CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
