// Package identity resolves the current user's id for claim submission.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/service"
)

// KeyUserID is the store key written by a successful login.
const KeyUserID = "user_id"

// Static returns a fixed, configured user id.
type Static string

// UserID implements service.IdentityProvider.
func (s Static) UserID(context.Context) (string, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return "", common.ErrNotLoggedIn
	}
	return id, nil
}

// StoreProvider reads the user id persisted alongside workflow state.
type StoreProvider struct {
	store service.Store
}

// NewStoreProvider creates a provider backed by store.
func NewStoreProvider(store service.Store) *StoreProvider {
	return &StoreProvider{store: store}
}

// UserID implements service.IdentityProvider.
func (p *StoreProvider) UserID(ctx context.Context) (string, error) {
	data, err := p.store.Get(ctx, KeyUserID)
	if errors.Is(err, common.ErrNotFound) {
		return "", common.ErrNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("failed to read user id: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", common.ErrNotLoggedIn
	}
	return id, nil
}

// Remember persists id so later runs resolve it without logging in again.
func (p *StoreProvider) Remember(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty user id", common.ErrInvalidConfig)
	}
	if err := p.store.Set(ctx, KeyUserID, []byte(id)); err != nil {
		return fmt.Errorf("failed to save user id: %w", err)
	}
	return nil
}

// Forget removes the persisted user id.
func (p *StoreProvider) Forget(ctx context.Context) error {
	if err := p.store.Delete(ctx, KeyUserID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to forget user id: %w", err)
	}
	return nil
}

// Chain tries each provider in order and returns the first id found.
// Errors other than common.ErrNotLoggedIn stop the search.
type Chain []service.IdentityProvider

// UserID implements service.IdentityProvider.
func (c Chain) UserID(ctx context.Context) (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		id, err := p.UserID(ctx)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, common.ErrNotLoggedIn) {
			return "", err
		}
	}
	return "", common.ErrNotLoggedIn
}
