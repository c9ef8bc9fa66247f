// Package monitor orchestrates the pipeline: it consumes clipboard change
// events, resolves video URLs, serves transcripts from the cache or fetches
// them, and writes the result back to the clipboard.
package monitor

import (
	"context"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/clipscribe/internal/cache"
	"github.com/MimeLyc/clipscribe/internal/clipboard"
	"github.com/MimeLyc/clipscribe/internal/resolver"
	"github.com/MimeLyc/clipscribe/internal/transcript"
	"github.com/MimeLyc/clipscribe/pkg/log"
)

// State is the pipeline stage reported for a video identifier.
type State string

const (
	StateIdle        State = "idle"
	StateCacheLookup State = "cache_lookup"
	StateFetching    State = "fetching"
	StateWriting     State = "writing"
)

// Outcome describes one finished pipeline run.
type Outcome struct {
	VideoID   transcript.VideoID
	FromCache bool
	// Preview holds the leading portion of the transcript on success.
	Preview string
	Err     error
	Kind    transcript.ErrorType
	// Hint is a short user-facing suggestion set on failure.
	Hint string
}

// Callbacks are invoked by the monitor on pipeline progress. They are
// called exactly once per terminal state and never concurrently with each
// other; re-dispatching onto a UI context is the receiver's concern.
type Callbacks struct {
	OnStatusChanged func(id transcript.VideoID, state State)
	OnProcessed     func(outcome Outcome)
}

// TranscriptFetcher is the retrieval capability the monitor depends on.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, id transcript.VideoID, opts transcript.FetchOptions) (transcript.Transcript, error)
}

const (
	defaultWorkers = 2
	jobBuffer      = 16
	previewLength  = 120
)

type job struct {
	id transcript.VideoID
}

type Monitor struct {
	fetcher   TranscriptFetcher
	cache     *cache.Cache
	clip      clipboard.Clipboard
	watcher   clipboard.Watcher
	callbacks Callbacks
	workers   int

	optsMu sync.RWMutex
	opts   transcript.FetchOptions

	mu       sync.Mutex
	inFlight map[transcript.VideoID]struct{}
	lastSeq  uint64

	callbackMu sync.Mutex
	flight     singleflight.Group

	jobs     chan job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Monitor)

func WithWorkers(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.workers = n
		}
	}
}

func WithCallbacks(callbacks Callbacks) Option {
	return func(m *Monitor) { m.callbacks = callbacks }
}

func New(
	f TranscriptFetcher,
	c *cache.Cache,
	clip clipboard.Clipboard,
	watcher clipboard.Watcher,
	opts transcript.FetchOptions,
	options ...Option,
) *Monitor {
	m := &Monitor{
		fetcher:  f,
		cache:    c,
		clip:     clip,
		watcher:  watcher,
		workers:  defaultWorkers,
		opts:     opts,
		inFlight: make(map[transcript.VideoID]struct{}),
		jobs:     make(chan job, jobBuffer),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Options returns the fetch options used for new pipeline runs.
func (m *Monitor) Options() transcript.FetchOptions {
	m.optsMu.RLock()
	defer m.optsMu.RUnlock()
	return m.opts
}

// SetOptions hot-applies new fetch options. In-flight runs keep the
// options they started with.
func (m *Monitor) SetOptions(opts transcript.FetchOptions) {
	m.optsMu.Lock()
	defer m.optsMu.Unlock()
	m.opts = opts
}

// Start launches the watcher, the event loop and the worker pool.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.watcher.Start(ctx); err != nil {
		return err
	}

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}

	m.wg.Add(1)
	go m.eventLoop(ctx)

	log.Info("monitor: started with %d workers", m.workers)
	return nil
}

// Stop shuts down the watcher and waits for in-flight runs to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.watcher.Stop()
	m.wg.Wait()
}

func (m *Monitor) eventLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event := <-m.watcher.Events():
			m.onWatcherEvent(event)
		}
	}
}

func (m *Monitor) onWatcherEvent(event clipboard.WatcherEvent) {
	m.mu.Lock()
	if event.Seq <= m.lastSeq {
		m.mu.Unlock()
		log.Debug("monitor: discarding stale event seq=%d", event.Seq)
		return
	}
	m.lastSeq = event.Seq
	m.mu.Unlock()

	id, ok := resolver.Resolve(event.Content)
	if !ok {
		return
	}

	m.mu.Lock()
	if _, running := m.inFlight[id]; running {
		m.mu.Unlock()
		log.Debug("monitor: coalescing event for in-flight video %s", id)
		return
	}
	m.inFlight[id] = struct{}{}
	m.mu.Unlock()

	select {
	case m.jobs <- job{id: id}:
	default:
		m.clearInFlight(id)
		log.Warn("monitor: job queue full, dropping event for %s", id)
	}
}

func (m *Monitor) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case j := <-m.jobs:
			m.process(ctx, j.id)
			m.clearInFlight(j.id)
		}
	}
}

func (m *Monitor) clearInFlight(id transcript.VideoID) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

func (m *Monitor) process(ctx context.Context, id transcript.VideoID) {
	opts := m.Options()
	key := transcript.CacheKey(id, opts)

	m.setState(id, StateCacheLookup)
	if text, ok := m.cache.Get(ctx, key); ok {
		log.Info("monitor: cache hit for %s", id)
		m.writeAndReport(ctx, id, text, true)
		return
	}

	m.setState(id, StateFetching)
	value, err, _ := m.flight.Do(key, func() (interface{}, error) {
		tr, err := m.fetcher.Fetch(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		return tr, nil
	})
	if err != nil {
		log.Warn("monitor: fetch failed for %s: %v", id, err)
		m.reportFailure(id, err)
		return
	}

	tr := value.(transcript.Transcript)
	text := tr.Render(opts)
	m.cache.Put(ctx, key, string(id), tr.Language, text)
	m.writeAndReport(ctx, id, text, false)
}

func (m *Monitor) writeAndReport(ctx context.Context, id transcript.VideoID, text string, fromCache bool) {
	m.setState(id, StateWriting)

	// Suppression must be registered before the write lands, so the next
	// watcher observation of our own content is swallowed.
	m.watcher.Suppress(text)
	if err := m.clip.Write(ctx, text); err != nil {
		// The write never landed, so disarm the suppression or it would
		// swallow the user's next genuine copy of the same text.
		m.watcher.ClearSuppression()
		log.Error("monitor: clipboard write failed for %s: %v", id, err)
		m.reportFailure(id, err)
		return
	}

	log.Info("monitor: replaced clipboard with transcript for %s (%d bytes, cached=%t)", id, len(text), fromCache)
	m.setState(id, StateIdle)
	m.invokeProcessed(Outcome{
		VideoID:   id,
		FromCache: fromCache,
		Preview:   preview(text),
	})
}

func (m *Monitor) reportFailure(id transcript.VideoID, err error) {
	kind := transcript.KindOf(err)
	m.setState(id, StateIdle)
	m.invokeProcessed(Outcome{
		VideoID: id,
		Err:     err,
		Kind:    kind,
		Hint:    friendlyHint(kind),
	})
}

func (m *Monitor) setState(id transcript.VideoID, state State) {
	if m.callbacks.OnStatusChanged == nil {
		return
	}
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.callbacks.OnStatusChanged(id, state)
}

func (m *Monitor) invokeProcessed(outcome Outcome) {
	if m.callbacks.OnProcessed == nil {
		return
	}
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.callbacks.OnProcessed(outcome)
}

// preview truncates on a rune boundary so multi-byte text is never split
// mid-character.
func preview(text string) string {
	if len(text) <= previewLength {
		return text
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

func friendlyHint(kind transcript.ErrorType) string {
	switch kind {
	case transcript.ErrNoTranscript:
		return "This video has no usable transcript."
	case transcript.ErrProviderUnavailable:
		return "Could not reach the video provider. Check your connection and copy the link again."
	case transcript.ErrClipboardIO:
		return "Could not access the system clipboard."
	case transcript.ErrCacheIO:
		return "Could not read or write the transcript cache on disk."
	default:
		return "Something went wrong. Copy the link again to retry."
	}
}
