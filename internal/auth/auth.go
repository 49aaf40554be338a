// Package auth guards the rule-management routes with a bcrypt-hashed admin key.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader is accepted as an alternative to a Bearer token.
const AdminKeyHeader = "X-Admin-Key"

var (
	ErrMissingAPIKey = errors.New("missing admin key")
	ErrInvalidAPIKey = errors.New("invalid admin key")
)

// AdminAuthenticator verifies the admin key presented on a request.
// Verified keys are cached by digest so bcrypt runs once per TTL.
type AdminAuthenticator struct {
	hash   []byte
	cache  *KeyCache
	logger *zap.Logger
}

// NewAdminAuthenticator creates an authenticator for a bcrypt hash as
// produced by HashKey.
func NewAdminAuthenticator(hash string, cacheTTL time.Duration, logger *zap.Logger) (*AdminAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("NewAdminAuthenticator: %w", err)
	}
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &AdminAuthenticator{
		hash:   []byte(hash),
		cache:  NewKeyCache(cacheTTL),
		logger: logger,
	}, nil
}

// Authenticate returns nil when r carries the admin key.
func (a *AdminAuthenticator) Authenticate(r *http.Request) error {
	key, err := extractAPIKey(r)
	if err != nil {
		return err
	}

	digest := keyDigest(key)
	if a.cache.Get(digest) {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(key)); err != nil {
		a.logger.Warn("admin key rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("path", r.URL.Path),
		)
		return ErrInvalidAPIKey
	}
	a.cache.Set(digest)
	return nil
}

// HashKey returns the bcrypt hash to configure for key.
func HashKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingAPIKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("HashKey: %w", err)
	}
	return string(hash), nil
}

func extractAPIKey(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get(AdminKeyHeader)); key != "" {
		return key, nil
	}
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", ErrMissingAPIKey
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
