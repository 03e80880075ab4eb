// Package cache provides the per-repo SQLite cache: blob digests keyed by
// stat identity to keep capture under the latency budget, and the
// telemetry event queue drained by flush-logs.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zeebo/xxh3"
)

// DB wraps the cache database stored at .git/ai/cache.db.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS file_digest (
	path TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	fingerprint INTEGER NOT NULL,
	blob_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS telemetry (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL
);
`

// Open opens or creates the cache database under the .git/ai directory.
func Open(aiDir string) (*DB, error) {
	if err := os.MkdirAll(aiDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", aiDir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(aiDir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying cache schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (c *DB) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// LookupDigest returns the cached blob hash for a path when the stat
// identity (size, mtime) still matches. Empty string means miss or stale.
func (c *DB) LookupDigest(path string, info os.FileInfo) string {
	var size, mtime int64
	var hash string
	err := c.db.QueryRow(
		"SELECT size, mtime, blob_hash FROM file_digest WHERE path = ?", path,
	).Scan(&size, &mtime, &hash)
	if err != nil {
		return ""
	}
	if size == info.Size() && mtime == info.ModTime().UnixNano() {
		return hash
	}
	return ""
}

// LookupByFingerprint handles the touched-but-unchanged case: the stat
// identity moved but the content did not. The caller passes the content's
// xxh3 fingerprint; on a match the stored blob hash is reused and the stat
// identity refreshed, skipping the blob rehash.
func (c *DB) LookupByFingerprint(path string, info os.FileInfo, fp uint64) string {
	var storedFP int64
	var hash string
	err := c.db.QueryRow(
		"SELECT fingerprint, blob_hash FROM file_digest WHERE path = ?", path,
	).Scan(&storedFP, &hash)
	if err != nil || uint64(storedFP) != fp {
		return ""
	}
	c.StoreDigest(path, info, fp, hash)
	return hash
}

// StoreDigest records the digest for a path's current stat identity.
// A failed write is non-fatal; the file is simply rehashed next time.
func (c *DB) StoreDigest(path string, info os.FileInfo, fp uint64, blobHash string) {
	c.db.Exec(
		`INSERT OR REPLACE INTO file_digest (path, size, mtime, fingerprint, blob_hash)
		 VALUES (?, ?, ?, ?, ?)`,
		path, info.Size(), info.ModTime().UnixNano(), int64(fp), blobHash,
	)
}

// Fingerprint computes the fast content fingerprint used by
// LookupByFingerprint.
func Fingerprint(content []byte) uint64 {
	return xxh3.Hash(content)
}

// Event is a queued telemetry record.
type Event struct {
	ID        int64
	CreatedAt time.Time
	Kind      string
	Payload   string
}

// EnqueueEvent appends a telemetry event. Failures are swallowed:
// telemetry must never fail a git operation.
func (c *DB) EnqueueEvent(kind, payload string) {
	c.db.Exec(
		"INSERT INTO telemetry (created_at, kind, payload) VALUES (?, ?, ?)",
		time.Now().UnixMilli(), kind, payload,
	)
}

// DequeueEvents removes and returns up to limit queued events, oldest
// first.
func (c *DB) DequeueEvents(limit int) ([]Event, error) {
	rows, err := c.db.Query(
		"SELECT id, created_at, kind, payload FROM telemetry ORDER BY id LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt int64
		if err := rows.Scan(&e.ID, &createdAt, &e.Kind, &e.Payload); err != nil {
			return nil, fmt.Errorf("scanning telemetry row: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading telemetry rows: %w", err)
	}

	for _, e := range events {
		if _, err := c.db.Exec("DELETE FROM telemetry WHERE id = ?", e.ID); err != nil {
			return events, fmt.Errorf("deleting telemetry row %d: %w", e.ID, err)
		}
	}
	return events, nil
}

// PendingEvents returns the queue depth.
func (c *DB) PendingEvents() (int64, error) {
	var n int64
	if err := c.db.QueryRow("SELECT COUNT(*) FROM telemetry").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting telemetry: %w", err)
	}
	return n, nil
}
