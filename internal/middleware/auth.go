package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth guards the operator endpoints (/secrets/refresh, /secrets/status).
// Two credential forms are accepted: a Bearer JWT signed with the admin key
// from the webhook secret bundle, or a static API key checked against a bcrypt
// hash from configuration. Either is sufficient.
type AdminAuth struct {
	keyFunc    func() ([]byte, error)
	apiKeyHash string
}

// NewAdminAuth creates the middleware. keyFunc returns the current HS256
// signing key; it is resolved per request so rotated keys take effect without
// a restart. apiKeyHash may be empty to disable static API keys.
func NewAdminAuth(keyFunc func() ([]byte, error), apiKeyHash string) *AdminAuth {
	return &AdminAuth{
		keyFunc:    keyFunc,
		apiKeyHash: apiKeyHash,
	}
}

func (m *AdminAuth) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.apiKeyHash != "" {
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				if bcrypt.CompareHashAndPassword([]byte(m.apiKeyHash), []byte(apiKey)) == nil {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		if err := m.validateToken(parts[1]); err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (m *AdminAuth) validateToken(tokenString string) error {
	key, err := m.keyFunc()
	if err != nil {
		return err
	}

	_, err = jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err
}
