// Package token keeps the access/refresh pair in a Storage and reads the
// claims out of a JWT without verifying its signature.
package token

import (
	"context"
	"fmt"

	"devblog/internal/storage"
)

const (
	AccessKey  = "access_token"
	RefreshKey = "refresh_token"
)

// Pair is what the auth endpoints hand out.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store persists one Pair. An empty string means absent.
type Store struct {
	s storage.Storage
}

// NewStore wraps s. A nil s yields a store that never remembers anything.
func NewStore(s storage.Storage) *Store {
	if s == nil {
		s = storage.Noop{}
	}
	return &Store{s: s}
}

// SetTokens overwrites both tokens.
func (t *Store) SetTokens(ctx context.Context, p Pair) error {
	if err := t.s.Set(ctx, AccessKey, p.AccessToken); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	if err := t.s.Set(ctx, RefreshKey, p.RefreshToken); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

func (t *Store) AccessToken(ctx context.Context) (string, error) {
	return t.get(ctx, AccessKey)
}

func (t *Store) RefreshToken(ctx context.Context) (string, error) {
	return t.get(ctx, RefreshKey)
}

// Clear removes both tokens.
func (t *Store) Clear(ctx context.Context) error {
	if err := t.s.Delete(ctx, AccessKey); err != nil {
		return fmt.Errorf("clearing access token: %w", err)
	}
	if err := t.s.Delete(ctx, RefreshKey); err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	return nil
}

func (t *Store) get(ctx context.Context, key string) (string, error) {
	v, ok, err := t.s.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}
