package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/siteray/siteray-agent/internal/database"
)

// DBStore is a KV backed by the kv_store table of a database.DB.
type DBStore struct {
	db database.DB
}

// NewDB wraps db. The caller must have run db.Migrate.
func NewDB(db database.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	rec, err := s.db.Value(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(rec.Value), dest); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (s *DBStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.db.PutValues(ctx, database.Record{Name: key, Value: string(raw)}); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func (s *DBStore) Remove(ctx context.Context, keys ...string) error {
	if err := s.db.DeleteValues(ctx, keys...); err != nil {
		return fmt.Errorf("removing %v: %w", keys, err)
	}
	return nil
}
