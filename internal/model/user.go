package model

import (
	"strings"
	"time"
)

// User represents a row in the `users` table. Username and PasswordHash are
// pointers because both are nullable: a username is unassigned until signup
// completes or a login backfills it, and OAuth-only accounts have no password.
// A fully onboarded account has at least one of PasswordHash or GoogleID set;
// both may coexist when a password account later links Google.
type User struct {
	ID           uint64
	Email        string
	Username     *string
	PasswordHash *string
	GoogleID     *string
	AvatarURL    *string
	Language     string
	Roles        string // comma-separated role names, e.g. "user" or "user,admin"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleList splits the stored roles column into a slice.
func (u User) RoleList() []string {
	if u.Roles == "" {
		return []string{"user"}
	}
	return strings.Split(u.Roles, ",")
}

// PublicUser is the projection returned to clients. The password hash is
// reduced to a boolean and internal columns are dropped.
type PublicUser struct {
	ID          uint64   `json:"id"`
	Email       string   `json:"email"`
	Username    *string  `json:"username"`
	AvatarURL   *string  `json:"avatarUrl"`
	Language    string   `json:"language"`
	Roles       []string `json:"roles"`
	HasPassword bool     `json:"hasPassword"`
}

// Public builds the client-facing projection of a user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		AvatarURL:   u.AvatarURL,
		Language:    u.Language,
		Roles:       u.RoleList(),
		HasPassword: u.PasswordHash != nil && *u.PasswordHash != "",
	}
}

// RefreshToken models a row in the `refresh_tokens` table: one live session.
// Only the SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	UserAgent *string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
