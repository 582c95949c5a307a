package config

import (
	"os"
	"time"
)

// RateLimitConfig drives the Redis token bucket in front of the auth
// endpoints. It guards signup/login/refresh against brute-force bursts and is
// unrelated to the outbound TMDB limiter, which has its own budget.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // bucket size per key
	RefillTokens   int           // tokens added per interval
	RefillInterval time.Duration // refill cadence
	TTL            time.Duration // bucket key lifetime in Redis
	Prefix         string        // key namespace
}

// LoadRateLimitConfig reads rate-limit settings with conservative defaults:
// 20 attempts per client, refilling one every 3 seconds.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("AUTH_RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("AUTH_RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   envInt("AUTH_RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("AUTH_RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		TTL:            envDur("AUTH_RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         getenv("AUTH_RATE_LIMIT_PREFIX", "rl:auth"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// The bucket key must outlive several refill intervals or state resets.
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
