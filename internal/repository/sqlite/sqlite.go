// Package sqlite is the local key/value store: one table mapping a key
// ("minelux_users", "minelux_mods", "currentUser") to a JSON value.
//
// It holds the fallback copy of each document when GitHub is unreachable
// and the CLI's login between invocations. The driver is modernc.org/sqlite,
// so the binaries build without cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.KVStore.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/minelux.db" → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" gets its own private database, so a
	// pool of more than one connection would see different data. A single
	// connection is plenty for a handful of small JSON documents.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database still answers. The health check calls it.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the key/value table. CREATE TABLE IF NOT EXISTS makes it
// safe to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating kv table: %w", err)
	}
	return nil
}
