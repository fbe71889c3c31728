package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCorrelationID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Correlation-ID"))
}

func TestCorrelationID_PropagatesHeader(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "upstream-id-42")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id-42", seen)
	assert.Equal(t, "upstream-id-42", rec.Header().Get("X-Correlation-ID"))
}

func TestGetCorrelationID_EmptyWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetCorrelationID(req.Context()))
}

var adminKey = []byte("admin-signing-key")

func newAdminAuth(t *testing.T, apiKey string) *AdminAuth {
	t.Helper()
	hash := ""
	if apiKey != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(h)
	}
	return NewAdminAuth(func() ([]byte, error) { return adminKey, nil }, hash)
}

func adminToken(t *testing.T, key []byte, method jwt.SigningMethod, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(expiry).Unix(),
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "no credentials",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid api key",
			apiKey:     "operator-key",
			headers:    map[string]string{"X-API-Key": "operator-key"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong api key",
			apiKey:     "operator-key",
			headers:    map[string]string{"X-API-Key": "guessed"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "api key ignored when none configured",
			headers:    map[string]string{"X-API-Key": "anything"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed authorization header",
			headers:    map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newAdminAuth(t, tt.apiKey)
			handler := auth.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/secrets/status", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rec := httptest.NewRecorder()
			handler(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireAdmin_JWT(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{
			name:       "valid token",
			token:      "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "expired token",
			token:      "expired",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong signing key",
			token:      "wrongkey",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			token:      "garbage",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newAdminAuth(t, "")
			handler := auth.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			var token string
			switch tt.token {
			case "":
				token = adminToken(t, adminKey, jwt.SigningMethodHS256, time.Hour)
			case "expired":
				token = adminToken(t, adminKey, jwt.SigningMethodHS256, -time.Hour)
			case "wrongkey":
				token = adminToken(t, []byte("not-the-key"), jwt.SigningMethodHS256, time.Hour)
			case "garbage":
				token = "not.a.jwt"
			}

			req := httptest.NewRequest(http.MethodGet, "/secrets/status", nil)
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

			rec := httptest.NewRecorder()
			handler(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireAdmin_KeySourceFailure(t *testing.T) {
	auth := NewAdminAuth(func() ([]byte, error) {
		return nil, fmt.Errorf("secret backend down")
	}, "")
	handler := auth.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/secrets/status", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, adminKey, jwt.SigningMethodHS256, time.Hour))

	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
