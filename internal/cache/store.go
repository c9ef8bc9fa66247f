package cache

import (
	"context"
	"time"
)

// Entry is the recency metadata tracked for one cached transcript.
type Entry struct {
	Key        string
	VideoID    string
	Language   string
	SizeBytes  int64
	CreatedAt  time.Time
	LastAccess time.Time
}

// Store persists the recency index so LRU order survives restarts.
type Store interface {
	// LoadEntries returns all entries, least recently accessed first.
	LoadEntries(ctx context.Context) ([]Entry, error)
	UpsertEntry(ctx context.Context, entry Entry) error
	// TouchEntry records a get-promotion without rewriting the whole row.
	TouchEntry(ctx context.Context, key string, lastAccess time.Time) error
	DeleteEntry(ctx context.Context, key string) error
	ClearEntries(ctx context.Context) error
}
