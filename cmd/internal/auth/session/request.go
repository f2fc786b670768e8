package session

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type ctxKey struct{}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// Authenticate verifies the request's bearer token.
func Authenticate(m AccessTokenManager, r *http.Request, now time.Time) (Claims, error) {
	tok := BearerToken(r)
	if tok == "" {
		return Claims{}, ErrMissingToken
	}
	return m.Verify(tok, now)
}

// WithClaims stores verified claims on ctx.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// ClaimsFrom returns claims stored by WithClaims.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}
