// Package auth protects the HTTP front door with a bearer API key. Only a
// bcrypt hash of the key is ever configured.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// GenerateKey returns a new random API key.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashKey returns the bcrypt hash to put in configuration.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// KeyChecker verifies bearer keys against one bcrypt hash. The digest of the
// last accepted key is remembered so repeated requests skip bcrypt.
type KeyChecker struct {
	hash []byte

	mu       sync.RWMutex
	accepted []byte // sha256 of the last accepted key
}

// NewKeyChecker validates hash and returns a checker for it.
func NewKeyChecker(hash string) (*KeyChecker, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid API key hash: %w", err)
	}
	return &KeyChecker{hash: []byte(hash)}, nil
}

// Check reports whether key matches.
func (c *KeyChecker) Check(key string) error {
	if key == "" {
		return ErrMissingKey
	}
	digest := sha256.Sum256([]byte(key))

	c.mu.RLock()
	cached := c.accepted
	c.mu.RUnlock()
	if cached != nil && subtle.ConstantTimeCompare(cached, digest[:]) == 1 {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(c.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	c.mu.Lock()
	c.accepted = digest[:]
	c.mu.Unlock()
	return nil
}

// Middleware rejects requests without a valid "Authorization: Bearer <key>".
func (c *KeyChecker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			key = ""
		}
		if err := c.Check(strings.TrimSpace(key)); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="callguard"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
