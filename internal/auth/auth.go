// Package auth mints and verifies bearer tokens and resolves the caller
// identity for API handlers. The core engines never validate credentials;
// they consume the identity this package puts on the request context.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey struct{}

// Service mints and parses HS256 tokens
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a new auth service
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// MintToken issues a token for the given user id
func (s *Service) MintToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns the user id it carries
func (s *Service) ParseToken(tokenString string) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if c.UserID == "" {
		return "", fmt.Errorf("token carries no user id")
	}
	return c.UserID, nil
}

// Middleware rejects requests without a valid bearer token and puts the
// caller id on the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"kind":"unauthorized","reason":"missing bearer token"}`))
			return
		}

		userID, err := s.ParseToken(tokenString)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"kind":"unauthorized","reason":"invalid bearer token"}`))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), userID)))
	})
}

// WithCaller returns a context carrying the caller id
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// CallerID returns the authenticated caller id, or "" if absent
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
