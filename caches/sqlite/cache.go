// Package sqlite is a gomediacache.Cache backed by a local SQLite database file.
// It is the default store for offline-first deployments: items survive restarts
// and no server is required.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

// DefaultPath is used by Open when no path is given.
const DefaultPath = ".cache/media.db"

var (
	//go:embed create_table.sql
	queryCreateTable string
	//go:embed count_items.sql
	queryCountItems string
	//go:embed delete_item.sql
	queryDeleteItem string
	//go:embed fetch_by_id.sql
	queryFetchByID string
	//go:embed insert_item.sql
	queryInsertItem string
)

// Cache implements the gomediacache.Cache interface using SQLite.
type Cache struct {
	db *sql.DB

	now func() time.Time
}

// Open opens (creating if needed) the database file at path with WAL journaling.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// Get retrieves a cache item by its key.
// Returns caches.ErrNoCacheItem if the item doesn't exist.
func (c *Cache) Get(ctx context.Context, k string) (*gomediacache.CacheItem, error) {
	var (
		item      gomediacache.CacheItem
		expiresAt sql.NullInt64
	)

	row := c.db.QueryRowContext(ctx, queryFetchByID, k)
	if err := row.Scan(&item.Response, &item.ContentType, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, caches.ErrNoCacheItem
		}
		return nil, err
	}

	if expiresAt.Valid {
		item.Expiration = time.UnixMilli(expiresAt.Int64).UTC()
	}

	return &item, nil
}

// Set upserts the item in a single statement.
func (c *Cache) Set(ctx context.Context, k string, v *gomediacache.CacheItem) error {
	var expiresAt sql.NullInt64
	if !v.Expiration.IsZero() {
		expiresAt = sql.NullInt64{Int64: v.Expiration.UnixMilli(), Valid: true}
	}

	now := c.now().UnixMilli()
	_, err := c.db.ExecContext(ctx, queryInsertItem, k, v.Response, v.ContentType, expiresAt, now, now)
	return err
}

// Delete removes the item stored under the key.
func (c *Cache) Delete(ctx context.Context, k string) error {
	_, err := c.db.ExecContext(ctx, queryDeleteItem, k)
	return err
}

// Len returns the number of stored items.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, queryCountItems).Scan(&n)
	return n, err
}

// New verifies the connection and creates the cache table.
func New(ctx context.Context, db *sql.DB) (*Cache, error) {
	if db == nil {
		return nil, caches.ValidationError{
			Reason: "nil db",
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, queryCreateTable); err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &Cache{
		db:  db,
		now: time.Now,
	}, nil
}
