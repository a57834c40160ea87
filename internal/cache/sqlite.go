package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore persists entries in a single SQLite table. Writes are
// serialised because SQLite allows one writer at a time.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	now        func() time.Time
}

// NewSQLiteStore opens (or creates) the database at filename.
// An empty filename opens a shared in-memory database.
func NewSQLiteStore(filename string) (*SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", filename, err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			expires INTEGER,
			stored_at INTEGER,
			value BLOB
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare sqlite cache: %w", err)
		}
	}

	return &SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
		now:        time.Now,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var expires int64
	var value []byte

	err := s.db.QueryRowContext(ctx, "SELECT expires, value FROM cache WHERE key = ?", key).Scan(&expires, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", key, err)
	}

	now := s.now()
	if !now.Before(time.UnixMilli(expires)) {
		_ = s.purgeIfExpired(ctx, key, now)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, expires, stored_at, value) VALUES (?, ?, ?, ?)",
		key, now.Add(ttl).UnixMilli(), now.UnixMilli(), value)
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// Purge removes the entry for key.
func (s *SQLiteStore) Purge(ctx context.Context, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key); err != nil {
		return unavailable("purge", key, err)
	}
	return nil
}

// purgeIfExpired deletes key only while its row is still expired at now, so a
// concurrent Set of a fresh value survives the lazy cleanup in Get.
func (s *SQLiteStore) purgeIfExpired(ctx context.Context, key string, now time.Time) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ? AND expires <= ?", key, now.UnixMilli())
	if err != nil {
		return unavailable("purge", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
