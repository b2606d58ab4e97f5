// Package auth supplies bearer credentials to the stream and HTTP transports.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// TokenSource yields the current bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken fixed token; empty means no credential
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrCredentialMissing
	}
	return string(s), nil
}

// ExpiresAt returns the exp claim of a JWT without verifying its signature.
// ok is false for opaque tokens and JWTs without exp.
func ExpiresAt(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// CheckExpiry fails with ErrCredentialExpired when token is a JWT whose exp is
// at or before now. The server stays the authority; this only avoids a
// connection attempt that is certain to be refused.
func CheckExpiry(token string, now time.Time) error {
	if token == "" {
		return ErrCredentialMissing
	}
	exp, ok := ExpiresAt(token)
	if ok && !now.Before(exp) {
		return ErrCredentialExpired.WithData("expired_at", exp)
	}
	return nil
}

// checked validates every token it hands out.
type checked struct {
	src   TokenSource
	clock clockwork.Clock
}

// Checked wraps src so expired JWTs surface as ErrCredentialExpired.
func Checked(src TokenSource, clock clockwork.Clock) TokenSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &checked{src: src, clock: clock}
}

func (c *checked) Token(ctx context.Context) (string, error) {
	tok, err := c.src.Token(ctx)
	if err != nil {
		return "", err
	}
	if err := CheckExpiry(tok, c.clock.Now()); err != nil {
		return "", err
	}
	return tok, nil
}

// BearerHeader "Bearer <token>", or empty when src is nil.
func BearerHeader(ctx context.Context, src TokenSource) (string, error) {
	if src == nil {
		return "", nil
	}
	tok, err := src.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + tok, nil
}
