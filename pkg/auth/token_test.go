package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "pullstream",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, "  0xFreelancer ")
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Caller() != "0xFreelancer" {
		t.Fatalf("unexpected caller %q", claims.Caller())
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(now) {
		t.Fatalf("expected future expiry")
	}
}

func TestParseAccessTokenFallsBackToSubject(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()
	claims := IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   "client-7",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parsed, err := ParseAccessToken(cfg, signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Caller() != "client-7" {
		t.Fatalf("expected subject fallback, got %q", parsed.Caller())
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	valid, err := MintAccessToken(cfg, now, "client")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	expired, err := MintAccessToken(cfg, now.Add(-2*time.Hour), "client")
	if err != nil {
		t.Fatalf("mint expired: %v", err)
	}
	noIdentity, err := jwt.NewWithClaims(jwt.SigningMethodHS256, IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}}).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"

	cases := []struct {
		name  string
		cfg   config.JWTConfig
		token string
	}{
		{name: "wrong secret", cfg: config.JWTConfig{Secret: "other", Issuer: cfg.Issuer}, token: valid},
		{name: "wrong issuer", cfg: otherIssuer, token: valid},
		{name: "expired", cfg: cfg, token: expired},
		{name: "garbage", cfg: cfg, token: "not-a-jwt"},
		{name: "no identity", cfg: cfg, token: noIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseAccessToken(tc.cfg, tc.token); err == nil {
				t.Fatalf("expected parse failure")
			}
		})
	}

	if _, err := ParseAccessToken(cfg, noIdentity); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	now := time.Now()
	if _, err := MintAccessToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, now, "a"); err == nil {
		t.Fatalf("expected missing secret error")
	}
	if _, err := MintAccessToken(testJWTConfig(), now, "   "); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}
