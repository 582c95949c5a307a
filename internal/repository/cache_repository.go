package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CacheRepo persists proxied TMDB responses in the `api_cache` table. The
// cache_key column is UNIQUE, so saves are single-row upserts.
type CacheRepo struct{ DB *sql.DB }

func NewCacheRepo(db *sql.DB) *CacheRepo { return &CacheRepo{DB: db} }

// Get returns the stored payload for a key, or ErrNotFound when no row
// exists or the row has expired. Expiry is strict: a row whose expires_at
// equals now is already stale.
func (r *CacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := r.DB.QueryRowContext(ctx,
		"SELECT payload FROM api_cache WHERE cache_key=? AND expires_at > UTC_TIMESTAMP(6) LIMIT 1",
		key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Save upserts one row per key, overwriting cached_at and expires_at on
// every write.
func (r *CacheRepo) Save(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	exp := time.Now().UTC().Add(ttl)
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO api_cache (cache_key, payload, cached_at, expires_at)
		 VALUES (?,?,UTC_TIMESTAMP(6),?)
		 ON DUPLICATE KEY UPDATE payload=VALUES(payload), cached_at=VALUES(cached_at), expires_at=VALUES(expires_at)`,
		key, payload, exp)
	return err
}

// ClearExpired bulk-deletes stale rows and returns the count removed.
func (r *CacheRepo) ClearExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM api_cache WHERE expires_at < UTC_TIMESTAMP(6)")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
