// Package middleware provides HTTP middleware for bearer token authentication.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// clientKey is the context key for the authenticated client name.
const clientKey ContextKey = "client"

// ErrNoClient is returned by ClientFrom for unauthenticated requests
var ErrNoClient = errors.New("client not found in request context")

// TokenValidator validates bearer tokens and returns the client they were issued to.
// This keeps the middleware independent of the token implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (Principal, error)
}

// Principal is the identity carried by a valid token.
type Principal interface {
	ClientName() string
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the
// client name to the request context. Paths in public skip authentication.
func AuthMiddleware(validator TokenValidator, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			principal, err := validator.ValidateToken(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), clientKey, principal.ClientName())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the token of an "Authorization: Bearer <token>" header.
// The scheme is case-insensitive.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], parts[1] != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="context-crystal"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// ClientFrom extracts the authenticated client name from the request context.
func ClientFrom(r *http.Request) (string, error) {
	client, ok := r.Context().Value(clientKey).(string)
	if !ok {
		return "", ErrNoClient
	}
	return client, nil
}

// WithClient returns a context carrying client, as AuthMiddleware would set it.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}
