package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/abduss/tasktrack/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenClaims is the wire form shared by access and refresh tokens. The two
// classes differ only by signing secret.
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 bearer tokens.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	nowFunc       func() time.Time
	parser        *jwt.Parser
}

// NewTokenCodec builds a codec from the process-wide auth settings.
func NewTokenCodec(cfg config.AuthConfig) *TokenCodec {
	c := &TokenCodec{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		nowFunc:       time.Now,
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.nowFunc() }),
	)
	return c
}

// IssueAccess signs a short-lived access token for identity.
func (c *TokenCodec) IssueAccess(identity Identity) (string, time.Time, error) {
	return c.issue(identity, c.accessSecret, c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for identity.
func (c *TokenCodec) IssueRefresh(identity Identity) (string, time.Time, error) {
	return c.issue(identity, c.refreshSecret, c.refreshTTL)
}

// VerifyAccess checks token against the access secret.
func (c *TokenCodec) VerifyAccess(token string) (TokenPayload, error) {
	return c.verify(token, c.accessSecret)
}

// VerifyRefresh checks token against the refresh secret.
func (c *TokenCodec) VerifyRefresh(token string) (TokenPayload, error) {
	return c.verify(token, c.refreshSecret)
}

func (c *TokenCodec) issue(identity Identity, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := c.nowFunc()
	expiresAt := now.Add(ttl)

	claims := tokenClaims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (c *TokenCodec) verify(token string, secret []byte) (TokenPayload, error) {
	var claims tokenClaims
	parsed, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return TokenPayload{}, ErrTokenInvalid
	}

	payload := TokenPayload{
		UserID:    userID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Time
	}
	return payload, nil
}
