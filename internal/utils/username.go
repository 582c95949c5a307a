package utils

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// ValidUsername reports whether a username is 3-20 characters of letters,
// digits or underscore.
func ValidUsername(s string) bool {
	return usernameRe.MatchString(s)
}

// NewUsername returns a generated username candidate of the form
// "user_xxxxxxxx". Uniqueness is the caller's concern.
func NewUsername() (string, error) {
	suffix, err := randomHex(4)
	if err != nil {
		return "", err
	}
	return "user_" + suffix, nil
}

// randomHex returns a hex-encoded string from n bytes of cryptographically
// secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
