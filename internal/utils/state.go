package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OAuthState carries client intent through the third-party redirect as a
// signed, structured token instead of a string-prefix convention. Flow is
// "web" or "mobile"; Redirect holds the deep-link URI for the mobile flow.
type OAuthState struct {
	Flow     string `json:"flow"`
	Redirect string `json:"redirect,omitempty"`
	jwt.RegisteredClaims
}

// SignOAuthState signs a short-lived state token for the consent redirect.
func SignOAuthState(secret, flow, redirect string) (string, error) {
	now := time.Now().UTC()
	claims := OAuthState{
		Flow:     flow,
		Redirect: redirect,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        NewTokenID(),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyOAuthState validates a state token returned by the provider.
func VerifyOAuthState(secret, token string) (*OAuthState, error) {
	state := &OAuthState{}
	if err := parseInto(secret, token, state); err != nil {
		return nil, err
	}
	return state, nil
}
