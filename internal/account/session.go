package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"conto/internal/core"
)

// ErrInvalidSession reports a token that failed verification.
var ErrInvalidSession = errors.New("invalid session token")

// JWTIssuer mints HMAC-signed session tokens carrying the account email as
// subject. The token is the session; no server-side session table exists.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  core.Clock
}

func NewJWTIssuer(secret string, ttl time.Duration, clock core.Clock) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue implements SessionIssuer.
func (j *JWTIssuer) Issue(ctx context.Context, emailAddr string) (core.Session, error) {
	now := j.clock.Now()
	expires := now.Add(j.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   emailAddr,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return core.Session{}, fmt.Errorf("sign session token: %w", err)
	}

	return core.Session{
		AccountEmail: emailAddr,
		Token:        token,
		IssuedAt:     now,
		ExpiresAt:    expires,
	}, nil
}

// Verify checks a token and returns the account email it was issued for.
func (j *JWTIssuer) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.clock.Now))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}
