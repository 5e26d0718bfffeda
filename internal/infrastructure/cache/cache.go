package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
)

// Cache configuration constants.
const (
	// dirPermissions is the permission mode for the cache directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the cache file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying cache connectivity.
	connectionTimeout = 5 * time.Second
)

// ErrNoSnapshot is returned by LoadSnapshot when the cache is empty.
var ErrNoSnapshot = errors.New("cache: no snapshot stored")

// schema bootstraps the single-row snapshot table.
const schema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	payload  BLOB NOT NULL,
	saved_at TIMESTAMP NOT NULL
);`

// Cache persists the last hub snapshot in a local SQLite file so the panel
// can render known device state immediately on startup, before the hub is
// reachable. The cached copy is advisory only; the first live snapshot
// replaces it.
type Cache struct {
	db   *sql.DB
	path string
}

// Open creates the cache file and bootstraps its schema.
//
// It performs the following setup:
//  1. Creates the cache directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode and busy timeout
//  4. Sets appropriate file permissions (0600)
//  5. Verifies the connection and creates the schema
//
// Parameters:
//   - cfg: Cache configuration
//
// Returns:
//   - *Cache: Ready-to-use snapshot cache
//   - error: If connection or setup fails
func Open(cfg config.CacheConfig) (*Cache, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	// Build connection string with pragmas
	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)

	// Add WAL mode if enabled
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	// SQLite works best with a single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	c := &Cache{
		db:   sqlDB,
		path: cfg.Path,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying cache connection: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	// Set file permissions (owner read/write only)
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return c, nil
}

// SaveSnapshot replaces the cached snapshot with devices.
func (c *Cache) SaveSnapshot(ctx context.Context, devices []device.Device) error {
	payload, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO snapshot (id, payload, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the cached snapshot and when it was saved.
// Returns ErrNoSnapshot when nothing has been cached yet.
func (c *Cache) LoadSnapshot(ctx context.Context) ([]device.Device, time.Time, error) {
	var payload []byte
	var savedAt time.Time

	err := c.db.QueryRowContext(ctx,
		"SELECT payload, saved_at FROM snapshot WHERE id = 1").Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}

	var devices []device.Device
	if err := json.Unmarshal(payload, &devices); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding snapshot: %w", err)
	}

	return devices, savedAt, nil
}

// HealthCheck verifies the cache is accessible and functioning.
func (c *Cache) HealthCheck(ctx context.Context) error {
	var result int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the cache file.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the cache file gracefully.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}
	return nil
}
