package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

var (
	// ErrPingFailed is returned if the initial ping to the database returns an error
	ErrPingFailed = errors.New("ping returned error")
)

var (
	//go:embed create_table.sql
	queryCreateTable string
	//go:embed delete_expired.sql
	queryDeleteExpired string
	//go:embed delete_item.sql
	queryDeleteItem string
	//go:embed fetch_by_id.sql
	queryFetchByID string
	//go:embed insert_item.sql
	queryInsertItem string
)

// Config defines the configuration options for the PostgreSQL cache implementation.
type Config struct {
	// DeleteExpiredItems enables automatic cleanup of rows past their retention
	// through a background task.
	DeleteExpiredItems bool

	// ExpiredTaskTimer defines the interval at which the cleanup task runs.
	// Shorter durations may impact database performance.
	ExpiredTaskTimer time.Duration

	// ItemExpiration defines how long rows are retained in the database.
	// This is separate from the expiration policy applied when items are read.
	ItemExpiration time.Duration

	Logger *slog.Logger
}

// Cache implements the gomediacache.Cache interface using PostgreSQL as the storage backend.
type Cache struct {
	db *sql.DB

	expiration time.Duration
	now        func() time.Time
}

// Get retrieves a cache item from PostgreSQL by its key.
// Returns caches.ErrNoCacheItem if the item doesn't exist.
func (p *Cache) Get(ctx context.Context, k string) (*gomediacache.CacheItem, error) {
	stmt, err := p.db.PrepareContext(ctx, queryFetchByID)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var (
		item      gomediacache.CacheItem
		expiresAt sql.NullTime
	)
	row := stmt.QueryRowContext(ctx, k)
	if err := row.Scan(&item.Response, &item.ContentType, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, caches.ErrNoCacheItem
		}
		return nil, err
	}

	if expiresAt.Valid {
		item.Expiration = expiresAt.Time.UTC()
	}

	return &item, nil
}

// Set stores a cache item in PostgreSQL, replacing any previous item under the key
// in a single statement.
func (p *Cache) Set(ctx context.Context, k string, v *gomediacache.CacheItem) error {
	stmt, err := p.db.PrepareContext(ctx, queryInsertItem)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var expiresAt sql.NullTime
	if !v.Expiration.IsZero() {
		expiresAt = sql.NullTime{Time: v.Expiration.UTC(), Valid: true}
	}

	now := p.now().UTC()
	_, err = stmt.ExecContext(ctx, k, v.Response, v.ContentType, expiresAt, now, now.Add(p.expiration))
	return err
}

// Delete removes the item stored under the key. Deleting a missing key is not an error.
func (p *Cache) Delete(ctx context.Context, k string) error {
	stmt, err := p.db.PrepareContext(ctx, queryDeleteItem)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, k)
	return err
}

func createTable(ctx context.Context, db *sql.DB) error {
	stmt, err := db.PrepareContext(ctx, queryCreateTable)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx)
	return err
}

func deleteExpiredItems(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	stmt, err := db.PrepareContext(ctx, queryDeleteExpired)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func expiredTask(ctx context.Context, db *sql.DB, interval time.Duration, now func() time.Time, logger *slog.Logger) {
	t := time.NewTimer(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "expired item task stopped")
			return
		case <-t.C:
			n, err := deleteExpiredItems(ctx, db, now().UTC())
			if err != nil {
				logger.WarnContext(ctx, "error deleting expired items", "error", err)
			} else if n > 0 {
				logger.DebugContext(ctx, "deleted expired items", "count", n)
			}
			_ = t.Reset(interval)
		}
	}
}

// New creates a new PostgreSQL cache instance with the provided configuration.
// It verifies the database connection, creates the necessary table structure, and
// optionally starts the cleanup task for expired rows, which runs until ctx is done.
//
// Returns an error if:
// - The database handle is nil
// - The database connection test fails
// - Table creation fails
func New(ctx context.Context, db *sql.DB, config *Config) (*Cache, error) {
	if db == nil {
		return nil, caches.ValidationError{
			Reason: "nil db",
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(ErrPingFailed, err)
	}

	if err := createTable(ctx, db); err != nil {
		return nil, err
	}

	c := &Cache{
		db: db,

		expiration: caches.DefaultExpiredDuration,
		now:        time.Now,
	}

	if config != nil {
		if config.ItemExpiration > 0 {
			c.expiration = config.ItemExpiration
		}

		if config.DeleteExpiredItems {
			interval := config.ExpiredTaskTimer
			if interval <= 0 {
				interval = caches.DefaultExpiredTaskTimer
			}

			logger := config.Logger
			if logger == nil {
				logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			}

			go expiredTask(ctx, db, interval, c.now, logger)
		}
	}

	return c, nil
}
