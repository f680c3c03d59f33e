// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"
)

// Store defines the contract for the durable key-value layer that backs
// workflow state. Implementations scope keys to a session namespace.
type Store interface {
	// Get returns common.ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// DeleteAll removes every key or none of them.
	DeleteAll(ctx context.Context, keys ...string) error
	Close() error
}

// IdentityProvider furnishes the current user's id.
type IdentityProvider interface {
	UserID(ctx context.Context) (string, error)
}

// RetryOptions configures repeated operations such as status watching.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
