// Package utils provides token signing, verification and hashing helpers.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a token fails signature verification, uses
// an unexpected algorithm, or has expired. Callers must not reveal which of
// these checks failed.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the payload of a short-lived access token. Subject carries
// the user ID; email and roles let the auth middleware populate the request
// context without a database round trip.
type AccessClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a long-lived refresh token. The registered
// ID (jti) is a random per-issuance value so that two tokens issued to the
// same user in the same second never collide.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// UserID parses the numeric subject of a claim set.
func (c AccessClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

func (c RefreshClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// SignedToken pairs a serialized JWT with its expiry.
type SignedToken struct {
	Token string
	Exp   time.Time
}

// SignAccessToken builds and signs an HS256 access token for a user.
func SignAccessToken(secret string, userID uint64, email string, roles []string, ttl time.Duration) (SignedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// SignRefreshToken builds and signs an HS256 refresh token. The secret must
// differ from the access secret so one class of token can never stand in for
// the other.
func SignRefreshToken(secret string, userID uint64, tokenID string, ttl time.Duration) (SignedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   strconv.FormatUint(userID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// VerifyAccessToken validates signature and expiry and returns the claims.
func VerifyAccessToken(secret, token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parseInto(secret, token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates signature and expiry and returns the claims.
func VerifyRefreshToken(secret, token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parseInto(secret, token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseInto(secret, token string, claims jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return ErrInvalidToken
	}
	return nil
}

// HashToken returns the SHA-256 hex digest of a raw token. Only this digest
// is ever persisted, so a leaked refresh_tokens table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewTokenID returns a random identifier embedded in refresh token payloads.
func NewTokenID() string {
	return uuid.NewString()
}
