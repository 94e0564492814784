package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siteray/siteray-agent/internal/config"
)

// Record is one named value of the kv_store table.
type Record struct {
	Name      string
	Value     string
	UpdatedAt time.Time
}

// DB persists the agent's named values. Implementations exist for SQLite
// (default) and MySQL.
type DB interface {
	// Value returns the record stored under name, or sql.ErrNoRows.
	Value(ctx context.Context, name string) (Record, error)

	// PutValues writes all records in one transaction, replacing existing
	// values with the same name.
	PutValues(ctx context.Context, records ...Record) error

	// DeleteValues removes the named records. Missing names are ignored.
	DeleteValues(ctx context.Context, names ...string) error

	// Migrate applies pending schema migrations in order.
	Migrate(ctx context.Context) error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// Driver returns the backend name: "sqlite" or "mysql".
	Driver() string
}

// New returns a DB implementation matching cfg.Driver.
// SQLite is the default when driver is empty.
func New(cfg config.DatabaseConfig) (DB, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQL(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, mysql)", cfg.Driver)
	}
}
