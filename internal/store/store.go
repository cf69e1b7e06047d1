// Package store persists day-keyed menu responses and the polling watchlist
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"menuwatch/internal/notify"
	"menuwatch/pkg/types"
)

var (
	// ErrNotFound reports a cache miss.
	ErrNotFound = errors.New("cache entry not found")
	// ErrEmptyMenu rejects caching a menu without items.
	ErrEmptyMenu = errors.New("menu has no items")
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	response   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS polling (
	url       TEXT PRIMARY KEY,
	last_hash TEXT NOT NULL DEFAULT ''
);
`

// Store wraps the SQLite database. A successful first-time Put for a key
// triggers a menu-changed notification.
type Store struct {
	db       *sql.DB
	notifier notify.Notifier
	logger   *slog.Logger
}

// Open opens (and if needed creates) the database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string, notifier notify.Notifier, logger *slog.Logger) (*Store, error) {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" coherent and sidesteps writer
	// contention on file databases.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, notifier: notifier, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CacheKey builds the day-scoped cache key for a normalized URL. Entries for
// the same restaurant on different days never collide.
func CacheKey(normalizedURL, day string) string {
	return normalizedURL + "_" + day
}

// Get returns the cached response for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var response string
	err := s.db.QueryRowContext(ctx, `SELECT response FROM cache WHERE key = ?`, key).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading cache entry: %w", err)
	}
	return response, nil
}

// Put stores a menu response under key. The response must be a menu document
// with at least one item. When the key was not present before, the configured
// notifier is told the restaurant's menu changed; the normalized URL is also
// removed from the polling watchlist since a cached menu needs no more polls
// today.
func (s *Store) Put(ctx context.Context, key, normalizedURL, restaurant, response string) error {
	var doc types.MenuDocument
	if err := json.Unmarshal([]byte(response), &doc); err != nil {
		return fmt.Errorf("decoding menu response: %w", err)
	}
	if !doc.HasItems() {
		return ErrEmptyMenu
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM cache WHERE key = ?)`, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking cache entry: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cache (key, response) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET response = excluded.response`,
		key, response)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}

	if !exists {
		name := restaurant
		if name == "" {
			name = "Unknown"
		}
		s.notifier.MenuChanged(name)
	}

	if err := s.DeletePolling(ctx, normalizedURL); err != nil {
		s.logger.Warn("removing polling entry failed", "url", normalizedURL, "error", err)
	}
	return nil
}

// SweepExpired deletes every cache entry not keyed to the given day and
// returns how many rows went away.
func (s *Store) SweepExpired(ctx context.Context, day string) (int64, error) {
	pattern := `%\_` + day
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE key NOT LIKE ? ESCAPE '\'`, pattern)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting swept entries: %w", err)
	}
	return n, nil
}

// ListPolling returns the whole watchlist.
func (s *Store) ListPolling(ctx context.Context) ([]types.PollingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, last_hash FROM polling ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("listing polling entries: %w", err)
	}
	defer rows.Close()

	var entries []types.PollingEntry
	for rows.Next() {
		var e types.PollingEntry
		if err := rows.Scan(&e.URL, &e.LastHash); err != nil {
			return nil, fmt.Errorf("scanning polling entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating polling entries: %w", err)
	}
	return entries, nil
}

// UpsertPolling adds a URL to the watchlist or refreshes its content hash.
func (s *Store) UpsertPolling(ctx context.Context, url, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO polling (url, last_hash) VALUES (?, ?)
		 ON CONFLICT (url) DO UPDATE SET last_hash = excluded.last_hash`,
		url, hash)
	if err != nil {
		return fmt.Errorf("upserting polling entry: %w", err)
	}
	return nil
}

// UpdatePollingHash records the latest observed content hash for url.
func (s *Store) UpdatePollingHash(ctx context.Context, url, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE polling SET last_hash = ? WHERE url = ?`, hash, url)
	if err != nil {
		return fmt.Errorf("updating polling hash: %w", err)
	}
	return nil
}

// DeletePolling removes a URL from the watchlist. Deleting an absent URL is
// not an error.
func (s *Store) DeletePolling(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM polling WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("deleting polling entry: %w", err)
	}
	return nil
}
