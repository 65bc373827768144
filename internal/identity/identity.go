package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/models"

	"github.com/c-pro/geche"
)

const DefaultTokenExpiry = 24 * time.Hour

// Verifier maps an opaque bearer credential to a user identity.
type Verifier interface {
	Verify(token string) (string, error)
}

// TokenStore persists issued tokens so they survive a restart.
type TokenStore interface {
	UpsertToken(token, userID string) error
	DeleteToken(token string) error
	ListTokens() (map[string]string, error)
}

// Service keeps live tokens in a TTL cache and writes them through to the
// store. Persisted tokens are reloaded on startup and age out of the cache
// on their normal expiry.
type Service struct {
	tokens geche.Geche[string, string]
	store  TokenStore
}

func NewService(ctx context.Context, tokenExpiry time.Duration, store TokenStore) (*Service, error) {
	if tokenExpiry == 0 {
		tokenExpiry = DefaultTokenExpiry
	}

	s := &Service{
		tokens: geche.NewMapTTLCache[string, string](ctx, tokenExpiry, time.Minute),
		store:  store,
	}

	if store != nil {
		persisted, err := store.ListTokens()
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted tokens: %w", err)
		}
		for token, userID := range persisted {
			s.tokens.Set(token, userID)
		}
	}

	return s, nil
}

// Issue mints a new bearer token for the user.
func (s *Service) Issue(userID string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(b)

	s.tokens.Set(token, userID)
	if s.store != nil {
		if err := s.store.UpsertToken(token, userID); err != nil {
			return "", fmt.Errorf("failed to persist token: %w", err)
		}
	}

	return token, nil
}

// Verify resolves a token to its user ID, or ErrUnauthenticated.
func (s *Service) Verify(token string) (string, error) {
	if token == "" {
		return "", models.ErrUnauthenticated
	}
	userID, err := s.tokens.Get(token)
	if err != nil {
		return "", models.ErrUnauthenticated
	}
	return userID, nil
}

// Revoke invalidates a token in the cache and the store.
func (s *Service) Revoke(token string) {
	_ = s.tokens.Del(token)
	if s.store != nil {
		if err := s.store.DeleteToken(token); err != nil {
			slog.Error("failed to delete persisted token", "error", err)
		}
	}
}

var _ Verifier = (*Service)(nil)

// StaticVerifier resolves tokens from a fixed map. Useful in tests and for
// wiring an external identity provider's pre-shared credentials.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", models.ErrUnauthenticated
	}
	return userID, nil
}
