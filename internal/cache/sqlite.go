package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite is a disk-backed cache that survives restarts.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_results_expires_at ON results(expires_at);
`

// NewSQLite opens (creating if needed) the cache database at path. A zero
// ttl never expires entries.
func NewSQLite(ctx context.Context, path string, ttl time.Duration) (*SQLite, error) {
	if path == "" {
		return nil, eris.New("cache: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "cache: sqlite exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "cache: sqlite migrate")
	}
	return &SQLite{db: db, ttl: ttl}, nil
}

// Get implements Cache.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data    []byte
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM results WHERE key = ?`, key,
	).Scan(&data, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: sqlite get %s", key)
	}
	if expires.Valid && time.Now().UTC().After(expires.Time) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	value, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set implements Cache.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC()
	var expires sql.NullTime
	if s.ttl > 0 {
		expires = sql.NullTime{Time: now.Add(s.ttl), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, encode(value), now, expires,
	)
	return eris.Wrapf(err, "cache: sqlite set %s", key)
}

// Delete implements Cache.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE key = ?`, key)
	return eris.Wrapf(err, "cache: sqlite delete %s", key)
}

// Purge removes expired entries and returns how many were deleted.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM results WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "cache: sqlite purge")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "cache: sqlite purge rows")
}

// Close implements Cache.
func (s *SQLite) Close() error {
	return s.db.Close()
}
