package identity_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/identity"
)

var t0 = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func authConfig() config.AuthConfig {
	return config.AuthConfig{TokenSecret: "s3cret", Issuer: "sneakerbid", TokenDuration: time.Hour}
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := identity.NewTokens(authConfig(), clock.NewMock(t0))

	raw, err := tokens.Issue("user-1", "kicks")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	u, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if u.ID != "user-1" || u.Username != "kicks" {
		t.Errorf("user = %+v", u)
	}
}

func TestTokens_Rejects(t *testing.T) {
	clk := clock.NewMock(t0)
	tokens := identity.NewTokens(authConfig(), clk)
	valid, _ := tokens.Issue("user-1", "")

	otherCfg := authConfig()
	otherCfg.TokenSecret = "different"
	forged, _ := identity.NewTokens(otherCfg, clk).Issue("user-1", "")

	otherCfg = authConfig()
	otherCfg.Issuer = "someone-else"
	wrongIssuer, _ := identity.NewTokens(otherCfg, clk).Issue("user-1", "")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "sneakerbid",
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "sneakerbid",
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}).SignedString([]byte("s3cret"))

	tests := []struct {
		name    string
		token   string
		advance time.Duration
	}{
		{name: "garbage", token: "not.a.token"},
		{name: "empty", token: ""},
		{name: "wrong secret", token: forged},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "alg none", token: none},
		{name: "missing subject", token: noSubject},
		{name: "expired", token: valid, advance: 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Set(t0.Add(tt.advance))
			if _, err := tokens.Verify(tt.token); !errors.Is(err, identity.ErrInvalidToken) {
				t.Errorf("Verify error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
