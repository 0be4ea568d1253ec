// Package token mints and verifies the signed session credential presented on
// protected requests.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/hdnotes/server/internal/platform/errors"
)

// ErrInvalidToken covers a missing, malformed, forged, or expired session
// token. The cases are not distinguished for callers.
var ErrInvalidToken = apperrors.New(apperrors.CodeUnauthenticated, "invalid or expired session token")

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Secret string        `env:"HDNOTES_JWT_SECRET"`
	TTL    time.Duration `env:"HDNOTES_SESSION_TTL" envDefault:"720h"`
}

// Config defines how session tokens are signed and how long they live.
type Config struct {
	Secret []byte
	TTL    time.Duration
}

// LoadConfigFromEnv reads session token configuration.
//
// A missing secret is a startup error, not a per-request condition: a server
// that cannot sign sessions must not serve traffic.
func LoadConfigFromEnv() (Config, error) {
	var raw tokenEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse session token env: %w", err)
	}
	secret := strings.TrimSpace(raw.Secret)
	if secret == "" {
		return Config{}, fmt.Errorf("HDNOTES_JWT_SECRET is required")
	}
	ttl := raw.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return Config{Secret: []byte(secret), TTL: ttl}, nil
}

// Issuer mints and verifies stateless session tokens.
//
// Tokens are self-contained: expiry is the only invalidation mechanism, there
// is no server-side session list to revoke from.
type Issuer struct {
	cfg   Config
	clock func() time.Time
}

// NewIssuer builds a session token issuer from validated config.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("session token secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session token ttl must be positive")
	}
	return &Issuer{cfg: cfg, clock: time.Now}, nil
}

// WithClock overrides the issuer clock, for tests.
func (i *Issuer) WithClock(clock func() time.Time) *Issuer {
	i.clock = clock
	return i
}

// Issue signs a token embedding the user id with an absolute expiry.
func (i *Issuer) Issue(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := i.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the embedded user id.
func (i *Issuer) Verify(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return i.clock().UTC() }),
	)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnauthenticated, ErrInvalidToken.Message, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
