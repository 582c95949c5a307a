// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values. Each field corresponds to an
// environment variable. Required values are enforced at startup: the process
// refuses to start when a secret it cannot run without is absent.
type Config struct {
	Env  string // application environment ("dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	AccessSecret   string // secret used to sign access tokens
	RefreshSecret  string // secret used to sign refresh tokens (distinct from AccessSecret)
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	MaxSessions    int    // concurrent refresh-token sessions allowed per user

	TMDBAPIKey     string // bearer token for the TMDB API
	TMDBConcurrent int    // in-flight ceiling for upstream TMDB calls
	TMDBPerSecond  int    // dispatch budget per second for upstream TMDB calls
	TMDBTimeoutSec int    // HTTP timeout for a single upstream TMDB call
	CacheTTLDays   int    // lifetime of proxied TMDB responses in days

	GoogleClientID     string
	GoogleClientSecret string
	PublicBaseURL      string // external base URL used to build OAuth callback URLs
	WebAppOrigin       string // origin allowed to receive the OAuth postMessage result
}

// Load reads configuration from the environment. Missing required variables
// cause a fatal log and exit.
func Load() Config {
	return Config{
		Env:  getenv("APP_ENV", "dev"),
		Port: getenv("APP_PORT", "8080"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		AccessSecret:   must("JWT_ACCESS_SECRET"),
		RefreshSecret:  must("JWT_REFRESH_SECRET"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 30),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		MaxSessions:    envInt("MAX_SESSIONS_PER_USER", 5),

		TMDBAPIKey:     must("TMDB_API_KEY"),
		TMDBConcurrent: envInt("TMDB_MAX_CONCURRENT", 10),
		TMDBPerSecond:  envInt("TMDB_PER_SECOND", 39),
		TMDBTimeoutSec: envInt("TMDB_TIMEOUT_SEC", 30),
		CacheTTLDays:   envInt("TMDB_CACHE_TTL_DAYS", 7),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		PublicBaseURL:      getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		WebAppOrigin:       getenv("WEB_APP_ORIGIN", "http://localhost:3000"),
	}
}

// IsProd reports whether the service runs with production settings. Cookie
// security keys off this.
func (c Config) IsProd() bool { return c.Env == "prod" }

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
