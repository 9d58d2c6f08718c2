package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Common errors returned by the cache.
var (
	ErrNotFound = errors.New("cache entry not found")
	ErrExpired  = errors.New("cache entry expired")
)

// Config holds configuration for the cache.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TTL is the default time-to-live for cache entries.
	TTL time.Duration
}

// Cache provides SQLite-backed caching of per-file CRC-32 and
// override-record-count results, keyed by path+size+mtime so a changed
// file is never served a stale entry.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// Entry is the cached result of a full plugin parse worth remembering
// across process runs: the CRC and the override-record count, both
// expensive to recompute for a large plugin.
type Entry struct {
	CRC                uint32
	NumOverrideRecords uint32
}

// New creates a new cache with the given configuration.
func New(cfg Config) (*Cache, error) {
	// Ensure the directory exists
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour // Default 1 month; plugin files change rarely.
	}

	return &Cache{
		db:  db,
		ttl: ttl,
	}, nil
}

// initSchema creates the necessary tables. crc and num_override_records
// are typed columns rather than a generic blob: this cache only ever
// stores one shape of value, so there is no reason to pay a
// marshal/unmarshal round trip or lose the ability to query on them.
func initSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS plugin_cache (
			cache_key TEXT PRIMARY KEY,
			crc INTEGER NOT NULL,
			num_override_records INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_plugin_cache_expires ON plugin_cache(expires_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Key builds a cache key from a plugin's absolute path, size, and
// modification time. Any change to the file changes the key, so a stale
// entry is simply never looked up again rather than needing eviction.
func Key(path string, size int64, mtimeUnixNano int64) string {
	return fmt.Sprintf("plugin:%s:%d:%d", path, size, mtimeUnixNano)
}

// Get retrieves a cached entry.
func (c *Cache) Get(ctx context.Context, key string) (Entry, error) {
	var entry Entry
	var expiresAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT crc, num_override_records, expires_at FROM plugin_cache WHERE cache_key = ?
	`, key).Scan(&entry.CRC, &entry.NumOverrideRecords, &expiresAt)

	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query cache: %w", err)
	}

	// Check expiration (using milliseconds for precision)
	if time.Now().UnixMilli() > expiresAt {
		// Clean up expired entry
		c.db.ExecContext(ctx, "DELETE FROM plugin_cache WHERE cache_key = ?", key)
		return Entry{}, ErrExpired
	}

	return entry, nil
}

// Set stores an entry in the cache.
func (c *Cache) Set(ctx context.Context, key string, value Entry) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores an entry in the cache with a custom TTL.
func (c *Cache) SetWithTTL(ctx context.Context, key string, value Entry, ttl time.Duration) error {
	now := time.Now()
	expiresAt := now.Add(ttl)

	// Use milliseconds for precision
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO plugin_cache (cache_key, crc, num_override_records, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, value.CRC, value.NumOverrideRecords, now.UnixMilli(), expiresAt.UnixMilli())

	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}

	return nil
}

// Delete removes an entry from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM plugin_cache WHERE cache_key = ?", key)
	return err
}

// Cleanup removes expired entries from the cache.
func (c *Cache) Cleanup(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM plugin_cache WHERE expires_at < ?", time.Now().UnixMilli())
	return err
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
