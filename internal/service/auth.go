package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/store"
)

// AuthService resolves raw API keys and checks their permissions. It never
// writes to the store.
type AuthService struct {
	store *store.Store
}

func NewAuthService(store *store.Store) *AuthService {
	return &AuthService{store: store}
}

// Resolve maps a raw key to its active record by hash equality.
func (s *AuthService) Resolve(ctx context.Context, rawKey string) (*model.APIKey, error) {
	if rawKey == "" {
		return nil, ErrUnauthenticated
	}

	key, err := s.store.GetActiveAPIKeyByHash(ctx, store.HashAPIKey(rawKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve api key: %w", err)
	}
	return key, nil
}

// Authorize resolves rawKey and requires it to hold perm.
func (s *AuthService) Authorize(ctx context.Context, rawKey string, perm model.Permission) (*model.APIKey, error) {
	key, err := s.Resolve(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	if err := Check(key, perm); err != nil {
		return nil, err
	}
	return key, nil
}

// Check reports a *ForbiddenError when key does not grant perm.
func Check(key *model.APIKey, perm model.Permission) error {
	if !key.HasPermission(perm) {
		return &ForbiddenError{Permission: string(perm)}
	}
	return nil
}
