// Package session binds authenticated user identities to requests and to
// the pipeline orchestrator. Tokens are JWT bearer tokens; verification is
// HMAC when a signing secret is configured, or parse-only behind a trusted
// proxy when it is not.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// Identity represents the authenticated user bound to a session.
type Identity struct {
	UserID    int64
	Subject   string
	ExpiresAt time.Time
}

// Valid reports whether the identity is usable at the given instant. A zero
// ExpiresAt means the token carried no expiry and never goes stale locally.
func (id *Identity) Valid(now time.Time) bool {
	if id == nil {
		return false
	}
	return id.ExpiresAt.IsZero() || now.Before(id.ExpiresAt)
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// FromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// Parser extracts identities from JWT bearer tokens.
//
// Security model:
//   - If Secret is set, tokens are verified (HMAC).
//   - If Secret is empty, tokens are parsed without verification, suitable
//     only behind a trusted proxy that already authenticated the caller.
type Parser struct {
	Secret []byte
}

// claims are the token claims prepline reads: sub, uid, exp.
type claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// ParseToken converts a raw token string into an Identity.
func (p *Parser) ParseToken(raw string) (*Identity, error) {
	var c claims
	if len(p.Secret) > 0 {
		_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return p.Secret, nil
		})
		if err != nil {
			return nil, fmt.Errorf("verify token: %w", err)
		}
	} else {
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(raw, &c); err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
	}

	id := &Identity{UserID: c.UserID, Subject: c.Subject}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}

// Middleware extracts a bearer token from the Authorization header and, when
// it parses, attaches the Identity to the request context. Requests without
// a usable token pass through without an identity; handlers that require one
// reject those themselves.
func Middleware(p *Parser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
				if id, err := p.ParseToken(strings.TrimSpace(token)); err == nil && id.Valid(time.Now()) {
					r = r.WithContext(WithIdentity(r.Context(), *id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
