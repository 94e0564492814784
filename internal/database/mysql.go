package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/siteray/siteray-agent/internal/config"
)

const mysqlUpsert = `INSERT INTO kv_store (name, value, updated_at) VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`

// MySQLDB implements DB using MySQL via go-sql-driver/mysql.
type MySQLDB struct {
	kvStore
}

// NewMySQL opens a MySQL connection using cfg.DSN.
func NewMySQL(cfg config.DatabaseConfig) (*MySQLDB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mysql DSN is required when driver is mysql")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	m := &MySQLDB{kvStore: kvStore{db: db, driver: "mysql", upsert: mysqlUpsert}}
	if err := m.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return m, nil
}

// Migrate applies pending SQL migrations.
func (m *MySQLDB) Migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id         INT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
		filename   VARCHAR(255) NOT NULL UNIQUE,
		applied_at VARCHAR(64)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return applyMigrations(ctx, m.db, m.driver)
}
