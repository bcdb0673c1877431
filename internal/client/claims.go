package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the unverified content of an access token, for display and
// expiry checks only.
type TokenClaims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// ParseClaims decodes a token without verifying its signature.
func ParseClaims(token string) (TokenClaims, bool) {
	var claims struct {
		Email string `json:"email"`
		jwt.RegisteredClaims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenClaims{}, false
	}

	out := TokenClaims{UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, true
}

// TokenExpired reports whether token is unreadable, lacks an expiry, or
// expires within buffer of now.
func TokenExpired(token string, buffer time.Duration, now time.Time) bool {
	claims, ok := ParseClaims(token)
	if !ok || claims.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(claims.ExpiresAt.Add(-buffer))
}
