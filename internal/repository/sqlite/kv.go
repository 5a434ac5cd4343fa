package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/minelux/internal/repository"
)

// compile-time check that *DB implements repository.KVStore
var _ repository.KVStore = (*DB)(nil)

// Get reads the JSON value stored under key into dst.
//
// NEVER FAILS LOUDLY:
// The local store is the last line of persistence; callers have nowhere
// else to go if it errors. A missing row, a query failure, and a value that
// no longer decodes into dst all read as "absent" (false). Failures other
// than a missing row are logged so they are not lost entirely.
func (db *DB) Get(ctx context.Context, key string, dst any) bool {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			db.logger.Warn("kv get failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		db.logger.Warn("kv value is corrupt",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Set JSON-encodes value and stores it under key, replacing any previous
// value. Returns false if the value cannot be encoded or the write fails.
func (db *DB) Set(ctx context.Context, key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		db.logger.Warn("kv value not serialisable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC(),
	)
	if err != nil {
		db.logger.Warn("kv set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Remove deletes key. Removing a key that does not exist succeeds.
func (db *DB) Remove(ctx context.Context, key string) bool {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		db.logger.Warn("kv remove failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
