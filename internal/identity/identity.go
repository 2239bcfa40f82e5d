// Package identity verifies the bearer tokens issued by the identity
// provider and resolves them to a stable user id.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
)

// ErrInvalidToken is returned for any token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid token")

// User is the authenticated caller.
type User struct {
	ID       string
	Username string
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	secret   []byte
	issuer   string
	duration time.Duration
	clock    clock.Clock
}

// NewTokens returns a Tokens signing with cfg.TokenSecret.
func NewTokens(cfg config.AuthConfig, clk clock.Clock) *Tokens {
	return &Tokens{
		secret:   []byte(cfg.TokenSecret),
		issuer:   cfg.Issuer,
		duration: cfg.TokenDuration,
		clock:    clk,
	}
}

// Issue signs a token for userID. The identity provider issues tokens in
// production; this is used by tests and local tooling.
func (t *Tokens) Issue(userID, username string) (string, error) {
	now := t.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
		},
		Username: username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates raw and returns the caller it identifies.
func (t *Tokens) Verify(raw string) (*User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &User{ID: claims.Subject, Username: claims.Username}, nil
}
