// Package auth persists the user's session: access token, refresh token and
// identity. The stored triple is the only source of truth for whether the
// user is logged in.
package auth

import (
	"context"
	"fmt"

	"github.com/siteray/siteray-agent/internal/storage"
	"github.com/siteray/siteray-agent/models"
)

// Store reads and writes the session in a storage.KV.
type Store struct {
	kv storage.KV
}

// NewStore returns a Store over kv.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Get returns the stored session, or nil when any of the three parts is
// missing.
func (s *Store) Get(ctx context.Context) (*models.StoredAuth, error) {
	var (
		access, refresh string
		user            models.User
	)
	ok, err := s.kv.Get(ctx, storage.KeyAccessToken, &access)
	if err != nil || !ok || access == "" {
		return nil, err
	}
	ok, err = s.kv.Get(ctx, storage.KeyRefreshToken, &refresh)
	if err != nil || !ok || refresh == "" {
		return nil, err
	}
	ok, err = s.kv.Get(ctx, storage.KeyUser, &user)
	if err != nil || !ok {
		return nil, err
	}
	return &models.StoredAuth{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Put stores a new session, replacing any existing one.
func (s *Store) Put(ctx context.Context, a models.StoredAuth) error {
	if err := s.kv.Set(ctx, storage.KeyUser, a.User); err != nil {
		return fmt.Errorf("storing user: %w", err)
	}
	return s.UpdateTokens(ctx, a.AccessToken, a.RefreshToken)
}

// UpdateTokens replaces the token pair after a refresh, keeping the user.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.kv.Set(ctx, storage.KeyAccessToken, accessToken); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyRefreshToken, refreshToken); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

// Clear removes the session.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Remove(ctx, storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser)
}
