package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// kvStore holds the queries shared by both drivers. Only the upsert
// statement differs between dialects.
type kvStore struct {
	db     *sql.DB
	driver string
	upsert string
}

func (s *kvStore) Driver() string { return s.driver }

func (s *kvStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *kvStore) Close() error {
	return s.db.Close()
}

func (s *kvStore) Value(ctx context.Context, name string) (Record, error) {
	var (
		rec     = Record{Name: name}
		updated string
	)
	row := s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM kv_store WHERE name = ?`, name)
	if err := row.Scan(&rec.Value, &updated); err != nil {
		return Record{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func (s *kvStore) PutValues(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.upsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		at := r.UpdatedAt
		if at.IsZero() {
			at = now
		}
		if _, err := stmt.ExecContext(ctx, r.Name, r.Value, at.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

func (s *kvStore) DeleteValues(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("DELETE FROM kv_store WHERE name IN (%s)", placeholders)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
