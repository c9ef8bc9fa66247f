package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clipscribe/internal/cache"
	"github.com/MimeLyc/clipscribe/internal/clipboard"
	"github.com/MimeLyc/clipscribe/internal/transcript"
)

const videoURL = "https://youtu.be/dQw4w9WgXcQ"

type fakeWatcher struct {
	events chan clipboard.WatcherEvent

	mu         sync.Mutex
	suppressed []string
	cleared    int
	seq        uint64
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{events: make(chan clipboard.WatcherEvent, 16)}
}

func (w *fakeWatcher) Start(context.Context) error           { return nil }
func (w *fakeWatcher) Stop()                                 {}
func (w *fakeWatcher) Events() <-chan clipboard.WatcherEvent { return w.events }

func (w *fakeWatcher) Suppress(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suppressed = append(w.suppressed, text)
}

func (w *fakeWatcher) ClearSuppression() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleared++
}

func (w *fakeWatcher) clearedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cleared
}

func (w *fakeWatcher) suppressedTexts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.suppressed...)
}

func (w *fakeWatcher) emit(content string) {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()
	w.events <- clipboard.WatcherEvent{Content: content, Seq: seq}
}

func (w *fakeWatcher) emitSeq(content string, seq uint64) {
	w.events <- clipboard.WatcherEvent{Content: content, Seq: seq}
}

type fakeClip struct {
	mu       sync.Mutex
	content  string
	writes   int
	writeErr error
}

func (f *fakeClip) Read(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, nil
}

func (f *fakeClip) Write(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.content = text
	f.writes++
	return nil
}

func (f *fakeClip) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	// text, when set, replaces the default two-segment transcript.
	text string
	// block, when non-nil, holds Fetch until closed.
	block chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, id transcript.VideoID, _ transcript.FetchOptions) (transcript.Transcript, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	text := f.text
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return transcript.Transcript{}, err
	}
	if text != "" {
		return transcript.Transcript{
			VideoID:  id,
			Language: "en",
			Segments: []transcript.Segment{{Start: 0, Text: text}},
		}, nil
	}
	return transcript.Transcript{
		VideoID:  id,
		Language: "en",
		Segments: []transcript.Segment{
			{Start: 0, Text: "hello"},
			{Start: 75 * time.Second, Text: "world"},
		},
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	monitor   *Monitor
	watcher   *fakeWatcher
	clip      *fakeClip
	fetcher   *fakeFetcher
	processed chan Outcome
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.New(t.TempDir(), 10, nil)
	require.NoError(t, err)

	f := &fixture{
		watcher:   newFakeWatcher(),
		clip:      &fakeClip{},
		fetcher:   &fakeFetcher{},
		processed: make(chan Outcome, 16),
	}
	f.monitor = New(
		f.fetcher,
		c,
		f.clip,
		f.watcher,
		transcript.FetchOptions{PreferredLanguage: "en"},
		WithCallbacks(Callbacks{
			OnProcessed: func(outcome Outcome) { f.processed <- outcome },
		}),
	)
	require.NoError(t, f.monitor.Start(context.Background()))
	t.Cleanup(f.monitor.Stop)
	return f
}

func (f *fixture) waitProcessed(t *testing.T) Outcome {
	t.Helper()
	select {
	case outcome := <-f.processed:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("no processed callback")
		return Outcome{}
	}
}

func TestMonitor_FetchesAndReplacesClipboard(t *testing.T) {
	f := newFixture(t)

	f.watcher.emit(videoURL)

	outcome := f.waitProcessed(t)
	require.NoError(t, outcome.Err)
	assert.Equal(t, transcript.VideoID("dQw4w9WgXcQ"), outcome.VideoID)
	assert.False(t, outcome.FromCache)
	assert.Equal(t, "hello world", outcome.Preview)
	assert.Equal(t, "hello world", f.clip.current())
	assert.Equal(t, 1, f.fetcher.callCount())
}

func TestMonitor_SecondCopyServedFromCache(t *testing.T) {
	f := newFixture(t)

	f.watcher.emit(videoURL)
	first := f.waitProcessed(t)
	require.NoError(t, first.Err)

	f.watcher.emit("something else")
	f.watcher.emit(videoURL)
	second := f.waitProcessed(t)

	require.NoError(t, second.Err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, f.fetcher.callCount())
}

func TestMonitor_SuppressesOwnWriteBeforeWriting(t *testing.T) {
	f := newFixture(t)

	f.watcher.emit(videoURL)
	outcome := f.waitProcessed(t)
	require.NoError(t, outcome.Err)

	assert.Equal(t, []string{"hello world"}, f.watcher.suppressedTexts())
	assert.Equal(t, "hello world", f.clip.current())
}

func TestMonitor_CoalescesEventsForInFlightVideo(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.fetcher.block = release

	f.watcher.emit(videoURL)
	require.Eventually(t, func() bool { return f.fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// A second event for the same video while the fetch is in flight.
	f.watcher.emit(videoURL)
	close(release)

	outcome := f.waitProcessed(t)
	require.NoError(t, outcome.Err)

	select {
	case extra := <-f.processed:
		t.Fatalf("coalesced event produced a second callback: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, f.fetcher.callCount())
}

func TestMonitor_DiscardsStaleEvents(t *testing.T) {
	f := newFixture(t)

	f.watcher.emitSeq(videoURL, 5)
	outcome := f.waitProcessed(t)
	require.NoError(t, outcome.Err)

	f.watcher.emitSeq("https://youtu.be/aaaaaaaaaaa", 3)
	select {
	case extra := <-f.processed:
		t.Fatalf("stale event was processed: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, f.fetcher.callCount())
}

func TestMonitor_IgnoresNonVideoContent(t *testing.T) {
	f := newFixture(t)

	f.watcher.emit("just some text")
	f.watcher.emit("https://example.com/watch?v=dQw4w9WgXcQ")

	select {
	case outcome := <-f.processed:
		t.Fatalf("non-video content was processed: %+v", outcome)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, f.fetcher.callCount())
}

func TestMonitor_ReportsFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = transcript.NewError(transcript.ErrNoTranscript, "nothing there")

	f.watcher.emit(videoURL)
	outcome := f.waitProcessed(t)

	require.Error(t, outcome.Err)
	assert.Equal(t, transcript.ErrNoTranscript, outcome.Kind)
	assert.NotEmpty(t, outcome.Hint)
	assert.Empty(t, f.clip.current())
}

func TestMonitor_WriteFailureClearsSuppression(t *testing.T) {
	f := newFixture(t)
	f.clip.writeErr = transcript.NewError(transcript.ErrClipboardIO, "clipboard write failed")

	f.watcher.emit(videoURL)
	outcome := f.waitProcessed(t)

	require.Error(t, outcome.Err)
	assert.Equal(t, transcript.ErrClipboardIO, outcome.Kind)
	// The write never landed, so the suppression armed for it must be
	// disarmed again.
	assert.Equal(t, []string{"hello world"}, f.watcher.suppressedTexts())
	assert.Equal(t, 1, f.watcher.clearedCount())
}

func TestMonitor_PreviewKeepsMultiByteRunesIntact(t *testing.T) {
	f := newFixture(t)
	// Two ASCII bytes push the cut point inside a 3-byte rune.
	f.fetcher.text = "ab" + strings.Repeat("한", 60)

	f.watcher.emit(videoURL)
	outcome := f.waitProcessed(t)

	require.NoError(t, outcome.Err)
	assert.True(t, strings.HasSuffix(outcome.Preview, "…"))
	assert.True(t, utf8.ValidString(outcome.Preview))
}

func TestMonitor_SetOptionsAffectsNextRun(t *testing.T) {
	f := newFixture(t)

	f.watcher.emit(videoURL)
	first := f.waitProcessed(t)
	require.NoError(t, first.Err)
	assert.Equal(t, "hello world", f.clip.current())

	f.monitor.SetOptions(transcript.FetchOptions{
		PreferredLanguage: "en",
		IncludeTimestamps: true,
	})

	// New options change the cache key, so this is a fresh fetch.
	f.watcher.emit("other content")
	f.watcher.emit(videoURL)
	second := f.waitProcessed(t)

	require.NoError(t, second.Err)
	assert.False(t, second.FromCache)
	assert.Equal(t, "[00:00] hello\n[01:15] world", f.clip.current())
}
