package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/poplist/api/internal/model"
)

// UserRepo persists rows of the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,username,password_hash,google_id,avatar_url,language,roles,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.GoogleID,
		&u.AvatarURL, &u.Language, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// Create inserts a user and returns its ID. Password hash and Google ID are
// nullable; OAuth-first accounts arrive without a password.
func (r *UserRepo) Create(ctx context.Context, email string, username, passwordHash, googleID, avatarURL *string, language, roles string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, google_id, avatar_url, language, roles) VALUES (?,?,?,?,?,?,?)",
		email, username, passwordHash, googleID, avatarURL, language, roles)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByGoogleID fetches a user by its OAuth subject id.
func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE google_id=? LIMIT 1", googleID))
}

// UsernameTaken reports whether a username is already assigned.
func (r *UserRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username=?", username).Scan(&n)
	return n > 0, err
}

// UpdateUsername assigns a new unique username.
func (r *UserRepo) UpdateUsername(ctx context.Context, userID uint64, username string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET username=? WHERE id=?", username, userID)
	if err != nil && isDuplicate(err) {
		return ErrUsernameExists
	}
	return err
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID uint64, passwordHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", passwordHash, userID)
	return err
}

// UpdateLanguage sets the preferred content language.
func (r *UserRepo) UpdateLanguage(ctx context.Context, userID uint64, language string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET language=? WHERE id=?", language, userID)
	return err
}

// LinkGoogle backfills the OAuth subject id (and avatar, when present) on an
// existing account.
func (r *UserRepo) LinkGoogle(ctx context.Context, userID uint64, googleID string, avatarURL *string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET google_id=?, avatar_url=COALESCE(?, avatar_url) WHERE id=?",
		googleID, avatarURL, userID)
	return err
}

// DeleteCascade removes a user and every dependent row inside a single
// transaction, so a crash mid-cascade cannot leave orphans.
func (r *UserRepo) DeleteCascade(ctx context.Context, userID uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		"DELETE FROM watchlist_likes WHERE user_id=?",
		"DELETE FROM watchlist_saves WHERE user_id=?",
		"DELETE FROM watchlist_likes WHERE watchlist_id IN (SELECT id FROM watchlists WHERE owner_id=?)",
		"DELETE FROM watchlist_saves WHERE watchlist_id IN (SELECT id FROM watchlists WHERE owner_id=?)",
		"DELETE FROM watchlist_items WHERE watchlist_id IN (SELECT id FROM watchlists WHERE owner_id=?)",
		"DELETE FROM watchlists WHERE owner_id=?",
		"DELETE FROM refresh_tokens WHERE user_id=?",
		"DELETE FROM users WHERE id=?",
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// isDuplicate detects MySQL error 1062 (duplicate entry on a unique index).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
