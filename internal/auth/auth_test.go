package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndParseToken(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	token, err := s.MintToken("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := s.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).MintToken("user-1")
	require.NoError(t, err)

	_, err = NewService("secret-b", time.Hour).ParseToken(token)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	s := NewService("test-secret", -time.Minute)

	token, err := s.MintToken("user-1")
	require.NoError(t, err)

	_, err = s.ParseToken(token)
	assert.Error(t, err)
}

func TestParseToken_Garbage(t *testing.T) {
	s := NewService("test-secret", time.Hour)
	_, err := s.ParseToken("not.a.token")
	assert.Error(t, err)
}

func TestMiddleware_SetsCallerID(t *testing.T) {
	s := NewService("test-secret", time.Hour)
	token, err := s.MintToken("user-7")
	require.NoError(t, err)

	var got string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CallerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", got)
}

func TestMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	s := NewService("test-secret", time.Hour)
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a valid token")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid bearer token")
}

func TestCallerID_AbsentIsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", CallerID(req.Context()))
}
