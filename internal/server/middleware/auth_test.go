package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenValidator accepts a fixed set of tokens.
type testTokenValidator struct {
	validTokens map[string]string
}

func (v *testTokenValidator) ValidateToken(tokenString string) (Principal, error) {
	client, ok := v.validTokens[tokenString]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return testPrincipal(client), nil
}

type testPrincipal string

func (p testPrincipal) ClientName() string { return string(p) }

func newValidator() *testTokenValidator {
	return &testTokenValidator{validTokens: map[string]string{"valid-token": "cli"}}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	var client string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		client, err = ClientFrom(r)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	})

	for _, header := range []string{"Bearer valid-token", "bearer valid-token", "BEARER   valid-token"} {
		client = ""
		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()

		AuthMiddleware(newValidator())(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, header)
		assert.Equal(t, "cli", client, header)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"no token", "Bearer"},
		{"extra parts", "Bearer valid-token extra"},
		{"unknown token", "Bearer forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			AuthMiddleware(newValidator())(handler).ServeHTTP(w, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestAuthMiddleware_PublicPaths(t *testing.T) {
	called := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ })
	mw := AuthMiddleware(newValidator(), "/health", "/api/token")

	for _, path := range []string{"/health", "/api/token"} {
		w := httptest.NewRecorder()
		mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/runs", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 3, called)
}

func TestClientFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ClientFrom(req)
	assert.ErrorIs(t, err, ErrNoClient)

	req = req.WithContext(WithClient(context.Background(), "worker"))
	client, err := ClientFrom(req)
	require.NoError(t, err)
	assert.Equal(t, "worker", client)
}
