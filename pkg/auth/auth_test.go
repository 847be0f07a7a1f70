package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newChecker(t *testing.T, key string) *KeyChecker {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	c, err := NewKeyChecker(string(hash))
	require.NoError(t, err)
	return c
}

func TestGenerateAndHashKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, 43)

	hash, err := HashKey(key)
	require.NoError(t, err)
	c, err := NewKeyChecker(hash)
	require.NoError(t, err)
	assert.NoError(t, c.Check(key))
}

func TestCheck(t *testing.T) {
	c := newChecker(t, "s3cret")

	assert.ErrorIs(t, c.Check(""), ErrMissingKey)
	assert.ErrorIs(t, c.Check("wrong"), ErrInvalidKey)
	assert.NoError(t, c.Check("s3cret"))
	// cached path
	assert.NoError(t, c.Check("s3cret"))
	assert.ErrorIs(t, c.Check("wrong"), ErrInvalidKey)
}

func TestNewKeyCheckerRejectsPlainKey(t *testing.T) {
	_, err := NewKeyChecker("not-a-hash")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	c := newChecker(t, "s3cret")
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/geocode", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
