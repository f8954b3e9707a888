package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glowcloud/glow/internal/model"
)

const apiKeyColumns = `id, key_hash, name, permissions, max_amount_sats, budget_sats,
	budget_period, is_active, created_at`

// CreateAPIKey inserts a new API key record. KeyHash must already be set
// (use HashAPIKey). ID and CreatedAt are assigned here when empty.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == "" {
		key.ID = uuid.Must(uuid.NewV7()).String()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	key.IsActive = true

	const q = `INSERT INTO api_keys
		(id, key_hash, name, permissions, max_amount_sats, budget_sats, budget_period, is_active, created_at)
		VALUES
		(:id, :key_hash, :name, :permissions, :max_amount_sats, :budget_sats, :budget_period, :is_active, :created_at)`

	bctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.db.NamedExecContext(bctx, q, key); err != nil {
		return fmt.Errorf("insert api key: %w", unavailable(ctx, err))
	}
	return nil
}

// GetActiveAPIKeyByHash looks up an active API key by its SHA-256 hash.
// Revoked keys are reported as ErrNotFound.
func (s *Store) GetActiveAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.rebind("SELECT " + apiKeyColumns + " FROM api_keys WHERE key_hash = ? AND is_active = ?")
	bctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.GetContext(bctx, &key, q, hash, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", unavailable(ctx, err))
	}
	return &key, nil
}

// GetAPIKey returns a key by id, active or not.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.rebind("SELECT " + apiKeyColumns + " FROM api_keys WHERE id = ?")
	bctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.GetContext(bctx, &key, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", unavailable(ctx, err))
	}
	return &key, nil
}

// ListActiveAPIKeys returns active keys, oldest first.
func (s *Store) ListActiveAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	q := s.rebind("SELECT " + apiKeyColumns + " FROM api_keys WHERE is_active = ? ORDER BY created_at, id")
	bctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.SelectContext(bctx, &keys, q, true); err != nil {
		return nil, fmt.Errorf("list api keys: %w", unavailable(ctx, err))
	}
	return keys, nil
}

// RevokeAPIKey marks an active key inactive. A key that does not exist or
// is already revoked yields ErrNotFound.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	q := s.rebind("UPDATE api_keys SET is_active = ? WHERE id = ? AND is_active = ?")
	bctx, cancel := s.bound(ctx)
	defer cancel()
	result, err := s.db.ExecContext(bctx, q, false, id, true)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", unavailable(ctx, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
