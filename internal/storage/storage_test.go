package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/database"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newDBStore(t *testing.T) *DBStore {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "kv.db")})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewDB(db)
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	var got sample
	ok, err := kv.Get(ctx, "missing", &got)
	if err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := kv.Set(ctx, "a", sample{Name: "x", Count: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "a", sample{Name: "y", Count: 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "b", "plain"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err = kv.Get(ctx, "a", &got)
	if err != nil || !ok {
		t.Fatalf("Get a: ok=%v err=%v", ok, err)
	}
	if got != (sample{Name: "y", Count: 2}) {
		t.Fatalf("unexpected value: %+v", got)
	}

	if err := kv.Remove(ctx, "a", "b", "never-set"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	var s string
	if ok, _ := kv.Get(ctx, "b", &s); ok {
		t.Fatalf("expected b removed")
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestDBStoreKV(t *testing.T) {
	exerciseKV(t, newDBStore(t))
}
