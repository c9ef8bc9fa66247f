// Package persistence stores the transcript cache index in SQLite so the
// cache's recency order survives process restarts.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/clipscribe/internal/cache"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS transcript_index (
		cache_key TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_access DATETIME NOT NULL
	);`); err != nil {
		return fmt.Errorf("create transcript_index: %w", err)
	}
	return nil
}

// LoadEntries returns all rows ordered least-recently-accessed first, ties
// broken by insertion order.
func (s *SQLiteStore) LoadEntries(ctx context.Context) ([]cache.Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT cache_key, video_id, language, size_bytes, created_at, last_access
		 FROM transcript_index
		 ORDER BY last_access ASC, created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]cache.Entry, 0)
	for rows.Next() {
		var item cache.Entry
		if err := rows.Scan(
			&item.Key,
			&item.VideoID,
			&item.Language,
			&item.SizeBytes,
			&item.CreatedAt,
			&item.LastAccess,
		); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertEntry(ctx context.Context, row cache.Entry) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcript_index (
			cache_key, video_id, language, size_bytes, created_at, last_access
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			video_id=excluded.video_id,
			language=excluded.language,
			size_bytes=excluded.size_bytes,
			last_access=excluded.last_access`,
		row.Key,
		row.VideoID,
		row.Language,
		row.SizeBytes,
		row.CreatedAt.UTC(),
		row.LastAccess.UTC(),
	)
	return err
}

// TouchEntry updates only the recency column.
func (s *SQLiteStore) TouchEntry(ctx context.Context, cacheKey string, lastAccess time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE transcript_index SET last_access = ? WHERE cache_key = ?`,
		lastAccess.UTC(),
		cacheKey,
	)
	return err
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, cacheKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcript_index WHERE cache_key = ?`, cacheKey)
	return err
}

func (s *SQLiteStore) ClearEntries(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcript_index`)
	return err
}
