package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/siteray/siteray-agent/internal/config"
)

func newTestSQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "nested", "siteray.db")})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestSQLite(t)
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	var count int
	if err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	names, _ := migrationNames()
	if count != len(names) {
		t.Fatalf("expected %d recorded migrations, got %d", len(names), count)
	}
	if db.Driver() != "sqlite" || filepath.Base(db.Path()) != "siteray.db" {
		t.Fatalf("driver=%q path=%q", db.Driver(), db.Path())
	}
}

func TestPutValuesReplaces(t *testing.T) {
	db := newTestSQLite(t)
	ctx := context.Background()
	t1 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := db.PutValues(ctx,
		Record{Name: "user", Value: `"a"`, UpdatedAt: t1},
		Record{Name: "accessToken", Value: `"tok"`},
	); err != nil {
		t.Fatalf("PutValues: %v", err)
	}
	got, err := db.Value(ctx, "user")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if got.Value != `"a"` || !got.UpdatedAt.Equal(t1) {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := db.PutValues(ctx, Record{Name: "user", Value: `"b"`}); err != nil {
		t.Fatalf("PutValues: %v", err)
	}
	got, err = db.Value(ctx, "user")
	if err != nil || got.Value != `"b"` || !got.UpdatedAt.After(t1) {
		t.Fatalf("after replace: %+v, %v", got, err)
	}

	if _, err := db.Value(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteValues(t *testing.T) {
	db := newTestSQLite(t)
	ctx := context.Background()
	if err := db.PutValues(ctx, Record{Name: "a", Value: "1"}, Record{Name: "b", Value: "2"}, Record{Name: "c", Value: "3"}); err != nil {
		t.Fatalf("PutValues: %v", err)
	}
	if err := db.DeleteValues(ctx, "a", "b", "never-set"); err != nil {
		t.Fatalf("DeleteValues: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		if _, err := db.Value(ctx, name); !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("%s still present: %v", name, err)
		}
	}
	if got, err := db.Value(ctx, "c"); err != nil || got.Value != "3" {
		t.Fatalf("c = %+v, %v", got, err)
	}
	if err := db.DeleteValues(ctx); err != nil {
		t.Fatalf("empty DeleteValues: %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(config.DatabaseConfig{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := New(config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected error for mysql without DSN")
	}
}
