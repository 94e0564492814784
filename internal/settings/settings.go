// Package settings persists the user's display preferences.
package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/siteray/siteray-agent/internal/storage"
	"github.com/siteray/siteray-agent/models"
)

// Store reads and writes models.ExtensionSettings in a storage.KV.
type Store struct {
	kv storage.KV
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Get returns the stored settings merged over the defaults. Fields absent
// from the stored object keep their default value.
func (s *Store) Get(ctx context.Context) (models.ExtensionSettings, error) {
	var raw json.RawMessage
	ok, err := s.kv.Get(ctx, storage.KeySettings, &raw)
	if err != nil {
		return models.DefaultSettings(), err
	}
	if !ok {
		return models.DefaultSettings(), nil
	}
	return Merge(raw)
}

// Save persists settings verbatim.
func (s *Store) Save(ctx context.Context, v models.ExtensionSettings) error {
	if err := s.kv.Set(ctx, storage.KeySettings, v); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Merge decodes a possibly partial settings object over the defaults.
func Merge(raw json.RawMessage) (models.ExtensionSettings, error) {
	out := models.DefaultSettings()
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.DefaultSettings(), fmt.Errorf("decoding settings: %w", err)
	}
	return out, nil
}
