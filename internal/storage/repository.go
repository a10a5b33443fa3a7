package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tally/internal/kv"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is a kv.Store backed by the kv_blobs table.
type SQLiteRepository struct {
	db *sql.DB
}

var _ kv.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements kv.Store
func (r *SQLiteRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_blobs WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("select blob %s: %w", key, err)
	}
	return value, nil
}

// Save implements kv.Store. The upsert replaces the whole row atomically.
func (r *SQLiteRepository) Save(ctx context.Context, key string, blob []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_blobs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, blob, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert blob %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Blob saved to SQLite", "key", key, "size", len(blob))
	return nil
}

// Delete implements kv.Store
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last saved.
func (r *SQLiteRepository) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var ms int64
	err := r.db.QueryRowContext(ctx, `SELECT updated_at FROM kv_blobs WHERE key = ?`, key).Scan(&ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, kv.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("select updated_at %s: %w", key, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Keys lists every stored key in ascending order.
func (r *SQLiteRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM kv_blobs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
