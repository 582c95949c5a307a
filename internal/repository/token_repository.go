package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists refresh-token sessions and enforces the per-user
// session cap at write time.
type TokenRepo struct {
	DB          *sql.DB
	MaxSessions int
}

func NewTokenRepo(db *sql.DB, maxSessions int) *TokenRepo {
	if maxSessions < 1 {
		maxSessions = 5
	}
	return &TokenRepo{DB: db, MaxSessions: maxSessions}
}

// CleanupAndCreate records a freshly issued session. Inside one transaction
// it drops the user's expired rows, evicts the single oldest live session
// when the cap is reached, and inserts the new row. Running the whole
// sequence in a transaction keeps the cap check atomic against concurrent
// logins on the same account.
func (r *TokenRepo) CleanupAndCreate(ctx context.Context, userID uint64, tokenHash string, userAgent *string, exp time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id=? AND expires_at < UTC_TIMESTAMP()",
		userID); err != nil {
		return err
	}

	var live int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM refresh_tokens WHERE user_id=? FOR UPDATE",
		userID).Scan(&live); err != nil {
		return err
	}
	if live >= r.MaxSessions {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM refresh_tokens WHERE user_id=? ORDER BY issued_at ASC LIMIT 1",
			userID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, user_agent, issued_at, expires_at) VALUES (?,?,?,UTC_TIMESTAMP(),?)",
		userID, tokenHash, userAgent, exp); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteByUserAndHash removes one session row and reports whether a row was
// there to remove. Rotation authorizes on that report, so a refresh token
// stays single-use even when presented twice concurrently: only one delete
// sees the row. Logout ignores the report.
func (r *TokenRepo) DeleteByUserAndHash(ctx context.Context, userID uint64, tokenHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id=? AND token_hash=?", userID, tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
