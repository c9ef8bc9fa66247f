// Package cache is a bounded, disk-backed LRU store for rendered transcript
// text. The recency index lives in memory (and in the Store, so it survives
// restarts); transcript bodies live as one blob file per entry, named by the
// entry's key hash.
package cache

import (
	"container/list"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/clipscribe/pkg/log"
)

// DefaultMaxEntries bounds the cache when no capacity is configured.
const DefaultMaxEntries = 100

const blobSuffix = ".txt"

type cacheEntry struct {
	meta Entry
	// memText holds the transcript for entries whose blob write failed;
	// they are served from memory for the rest of the process lifetime.
	memText string
	memOnly bool
}

// Cache is safe for concurrent use; a single mutex guards the index and
// all blob operations.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	blobDir    string
	store      Store // may be nil: index then lives only in memory

	entries map[string]*list.Element // key → element in order
	order   *list.List               // front = most recently used
}

// New creates the cache and reconstructs its recency index from the store
// and the blob directory. Entries with missing or unreadable blobs are
// pruned; orphan blobs with no index row are removed.
func New(blobDir string, maxEntries int, store Store) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, err
	}

	c := &Cache{
		maxEntries: maxEntries,
		blobDir:    blobDir,
		store:      store,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
	c.load(context.Background())
	return c, nil
}

func (c *Cache) load(ctx context.Context) {
	if c.store == nil {
		return
	}
	loaded, err := c.store.LoadEntries(ctx)
	if err != nil {
		log.Error("cache: failed to load index: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	indexed := make(map[string]bool, len(loaded))
	// Oldest first, so pushing each to the front leaves the newest there.
	for _, meta := range loaded {
		if meta.Key == "" {
			continue
		}
		if _, err := os.Stat(c.blobPath(meta.Key)); err != nil {
			log.Warn("cache: pruning entry %s with missing blob", shortKey(meta.Key))
			if err := c.store.DeleteEntry(ctx, meta.Key); err != nil {
				log.Error("cache: failed to prune index row %s: %v", shortKey(meta.Key), err)
			}
			continue
		}
		indexed[meta.Key] = true
		c.entries[meta.Key] = c.order.PushFront(&cacheEntry{meta: meta})
	}

	c.removeOrphanBlobsLocked(indexed)
	c.evictLocked(ctx)
}

// removeOrphanBlobsLocked deletes blob files that have no index row.
func (c *Cache) removeOrphanBlobsLocked(indexed map[string]bool) {
	dirEntries, err := os.ReadDir(c.blobDir)
	if err != nil {
		log.Error("cache: failed to scan blob dir: %v", err)
		return
	}
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || !strings.HasSuffix(name, blobSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, blobSuffix)
		if indexed[key] {
			continue
		}
		log.Warn("cache: removing orphan blob %s", shortKey(key))
		if err := os.Remove(filepath.Join(c.blobDir, name)); err != nil {
			log.Error("cache: failed to remove orphan blob: %v", err)
		}
	}
}

// Get returns the cached text for key and promotes the entry to most
// recently used. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (text string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.entries[key]
	if !found {
		return "", false
	}
	entry := elem.Value.(*cacheEntry)

	if entry.memOnly {
		text = entry.memText
	} else {
		data, err := os.ReadFile(c.blobPath(key))
		if err != nil {
			// Blob vanished or went unreadable under us; prune and miss.
			log.Warn("cache: unreadable blob for %s, pruning: %v", shortKey(key), err)
			c.removeLocked(ctx, key, elem)
			return "", false
		}
		text = string(data)
	}

	entry.meta.LastAccess = time.Now().UTC()
	c.order.MoveToFront(elem)
	if c.store != nil {
		if err := c.store.TouchEntry(ctx, key, entry.meta.LastAccess); err != nil {
			log.Error("cache: failed to persist recency for %s: %v", shortKey(key), err)
		}
	}
	return text, true
}

// Put inserts or overwrites the entry and evicts least-recently-used
// entries until the cache is back under capacity. A blob write failure is
// logged and the entry degrades to memory-only; the index never corrupts.
func (c *Cache) Put(ctx context.Context, key, videoID, language, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	entry := &cacheEntry{
		meta: Entry{
			Key:        key,
			VideoID:    videoID,
			Language:   language,
			SizeBytes:  int64(len(text)),
			CreatedAt:  now,
			LastAccess: now,
		},
	}

	if err := c.writeBlob(key, text); err != nil {
		log.Error("cache: blob write failed for %s, serving from memory: %v", shortKey(key), err)
		entry.memText = text
		entry.memOnly = true
	}

	if existing, found := c.entries[key]; found {
		c.order.Remove(existing)
	}
	c.entries[key] = c.order.PushFront(entry)

	if c.store != nil && !entry.memOnly {
		if err := c.store.UpsertEntry(ctx, entry.meta); err != nil {
			log.Error("cache: failed to persist index row for %s: %v", shortKey(key), err)
		}
	}

	c.evictLocked(ctx)
}

// Clear removes every entry, in memory and on disk.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if err := os.Remove(c.blobPath(key)); err != nil && !os.IsNotExist(err) {
			log.Error("cache: failed to remove blob %s: %v", shortKey(key), err)
		}
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()

	if c.store != nil {
		if err := c.store.ClearEntries(ctx); err != nil {
			log.Error("cache: failed to clear index: %v", err)
		}
	}
}

// SetMaxEntries reconfigures capacity and evicts immediately if the cache
// is now over it.
func (c *Cache) SetMaxEntries(ctx context.Context, maxEntries int) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxEntries = maxEntries
	c.evictLocked(ctx)
}

// Len reports the number of tracked entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats summarizes cache state for the presentation layer.
type Stats struct {
	EntryCount     int   `json:"entry_count"`
	MaxEntries     int   `json:"max_entries"`
	UtilizationPct int   `json:"utilization_pct"`
	TotalBytes     int64 `json:"total_bytes"`
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalBytes int64
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		totalBytes += elem.Value.(*cacheEntry).meta.SizeBytes
	}
	return Stats{
		EntryCount:     len(c.entries),
		MaxEntries:     c.maxEntries,
		UtilizationPct: len(c.entries) * 100 / c.maxEntries,
		TotalBytes:     totalBytes,
	}
}

// Sweep re-checks index/blob consistency, pruning entries whose blobs have
// disappeared since startup. Intended for periodic maintenance.
func (c *Cache) Sweep(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for key, elem := range c.entries {
		if elem.Value.(*cacheEntry).memOnly {
			continue
		}
		if _, err := os.Stat(c.blobPath(key)); err != nil {
			log.Warn("cache: sweep pruning entry %s: %v", shortKey(key), err)
			c.removeLocked(ctx, key, elem)
			pruned++
		}
	}
	return pruned
}

// evictLocked drops least-recently-used entries until within capacity.
// Never evicts the most recently inserted entry.
func (c *Cache) evictLocked(ctx context.Context) {
	for len(c.entries) > c.maxEntries {
		back := c.order.Back()
		if back == nil {
			return
		}
		key := back.Value.(*cacheEntry).meta.Key
		log.Debug("cache: evicting %s", shortKey(key))
		c.removeLocked(ctx, key, back)
	}
}

func (c *Cache) removeLocked(ctx context.Context, key string, elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, key)
	if err := os.Remove(c.blobPath(key)); err != nil && !os.IsNotExist(err) {
		log.Error("cache: failed to remove blob %s: %v", shortKey(key), err)
	}
	if c.store != nil {
		if err := c.store.DeleteEntry(ctx, key); err != nil {
			log.Error("cache: failed to delete index row %s: %v", shortKey(key), err)
		}
	}
}

// writeBlob writes the transcript atomically so a reader never observes a
// partial file.
func (c *Cache) writeBlob(key, text string) error {
	path := c.blobPath(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(text), 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (c *Cache) blobPath(key string) string {
	return filepath.Join(c.blobDir, key+blobSuffix)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
