package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	app "github.com/automationpanda/bulldoggy"
)

// Identity is a verified session identity extracted from a token.
type Identity struct {
	Username  string
	SessionID string
}

// TokenCodec signs and verifies session tokens. Tokens are HMAC-signed
// claims binding a username and a unique session id, valid for a fixed TTL.
type TokenCodec struct {
	key []byte
	ttl time.Duration
}

// NewTokenCodec creates a TokenCodec using the given signing key.
func NewTokenCodec(key string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{key: []byte(key), ttl: ttl}
}

// Sign produces a token for the given username. Each call mints a fresh
// session id, so two logins by the same user carry distinct tokens.
func (c *TokenCodec) Sign(username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("sign: username is required")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Verify parses and validates a token, returning the identity it binds.
// Any parse, signature, or expiry failure yields ErrInvalidToken.
func (c *TokenCodec) Verify(tokenString string) (Identity, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.key, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return Identity{}, app.ErrInvalidToken
	}
	return Identity{Username: claims.Subject, SessionID: claims.ID}, nil
}
