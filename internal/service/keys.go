package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/store"
)

// EventPublisher receives fire-and-forget notifications.
type EventPublisher interface {
	Publish(model.Event)
}

// CreateKeyParams describes a key to mint.
type CreateKeyParams struct {
	Name          string
	Permissions   []string
	MaxAmountSats *int64
	BudgetSats    *int64
	BudgetPeriod  *string
}

// KeyService owns the key-management rules on top of the store.
type KeyService struct {
	store  *store.Store
	events EventPublisher
	now    func() time.Time
}

func NewKeyService(store *store.Store, events EventPublisher) *KeyService {
	return &KeyService{store: store, events: events, now: time.Now}
}

// Create mints a key through the self-service path. Only balance, receive
// and send may be granted here.
func (s *KeyService) Create(ctx context.Context, p CreateKeyParams) (string, *model.APIKey, error) {
	if err := CheckSelfService(p.Permissions); err != nil {
		return "", nil, err
	}
	return s.create(ctx, p)
}

// CheckSelfService rejects any permission an API caller may not grant,
// admin included, naming each offender.
func CheckSelfService(perms []string) error {
	var invalid []string
	for _, perm := range perms {
		if !slices.Contains(model.SelfServicePermissions, model.Permission(perm)) {
			invalid = append(invalid, perm)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	slices.Sort(invalid)
	return &ValidationError{Message: fmt.Sprintf(
		"Invalid permissions: %s. Admin keys can only be created with the provisioning CLI.",
		strings.Join(slices.Compact(invalid), ", "))}
}

// Provision mints a key with any known permission, admin included. It
// backs the privileged CLI only and is never reachable over HTTP.
func (s *KeyService) Provision(ctx context.Context, p CreateKeyParams) (string, *model.APIKey, error) {
	for _, perm := range p.Permissions {
		if !model.ValidPermission(perm) {
			return "", nil, &ValidationError{Message: fmt.Sprintf("unknown permission %q", perm)}
		}
	}
	return s.create(ctx, p)
}

func (s *KeyService) create(ctx context.Context, p CreateKeyParams) (string, *model.APIKey, error) {
	if err := validateParams(&p); err != nil {
		return "", nil, err
	}

	raw, err := GenerateRawKey()
	if err != nil {
		return "", nil, err
	}

	key := &model.APIKey{
		KeyHash:       store.HashAPIKey(raw),
		Name:          p.Name,
		Permissions:   pq.StringArray(p.Permissions),
		MaxAmountSats: p.MaxAmountSats,
		BudgetSats:    p.BudgetSats,
		BudgetPeriod:  p.BudgetPeriod,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("create key: %w", err)
	}

	s.publish(model.Event{Type: model.EventKeyCreated, APIKeyID: key.ID,
		Data: map[string]any{"name": key.Name, "permissions": []string(key.Permissions)}})
	return raw, key, nil
}

func validateParams(p *CreateKeyParams) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" || len(p.Name) > 100 {
		return &ValidationError{Message: "name must be between 1 and 100 characters"}
	}
	if len(p.Permissions) == 0 {
		for _, perm := range model.DefaultPermissions {
			p.Permissions = append(p.Permissions, string(perm))
		}
	}
	p.Permissions = dedupe(p.Permissions)

	if p.MaxAmountSats != nil && *p.MaxAmountSats < 1 {
		return &ValidationError{Message: "max_amount_sats must be at least 1"}
	}
	if p.BudgetSats != nil && *p.BudgetSats < 1 {
		return &ValidationError{Message: "budget_sats must be at least 1"}
	}
	if p.BudgetSats != nil && p.BudgetPeriod == nil {
		return &ValidationError{Message: "budget_period is required when budget_sats is set"}
	}
	if p.BudgetPeriod != nil {
		if !model.ValidPeriod(*p.BudgetPeriod) {
			return &ValidationError{Message: "budget_period must be one of daily, weekly, monthly"}
		}
		if p.BudgetSats == nil {
			return &ValidationError{Message: "budget_sats is required when budget_period is set"}
		}
	}
	return nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// List returns active keys, oldest first.
func (s *KeyService) List(ctx context.Context) ([]model.APIKey, error) {
	return s.store.ListActiveAPIKeys(ctx)
}

// Revoke deactivates key id on behalf of callerID. A key may not revoke
// itself; pass an empty callerID for the privileged CLI.
func (s *KeyService) Revoke(ctx context.Context, id, callerID string) error {
	if callerID != "" && id == callerID {
		return ErrSelfRevoke
	}
	if err := s.store.RevokeAPIKey(ctx, id); err != nil {
		return err
	}
	s.publish(model.Event{Type: model.EventKeyRevoked, APIKeyID: id})
	return nil
}

func (s *KeyService) publish(ev model.Event) {
	if s.events == nil {
		return
	}
	ev.ID = uuid.Must(uuid.NewV7()).String()
	ev.OccurredAt = s.now().UTC()
	s.events.Publish(ev)
}

// GenerateRawKey returns 32 random bytes as unpadded URL-safe base64.
func GenerateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
