package clipboard

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/MimeLyc/clipscribe/internal/transcript"
	"github.com/MimeLyc/clipscribe/pkg/log"
)

// WatcherEvent is one observed clipboard change. Seq increases strictly
// with observation order, so a consumer can discard stale events.
type WatcherEvent struct {
	Content string
	Seq     uint64
}

// Watcher surfaces clipboard changes as a stream of events.
type Watcher interface {
	// Start begins watching. The watcher stops when ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context) error
	Stop()
	Events() <-chan WatcherEvent
	// Suppress marks text so that its next observation is swallowed.
	// Used to keep the daemon's own clipboard writes from re-triggering it.
	Suppress(text string)
	// ClearSuppression disarms a pending Suppress, for when the write it
	// was covering never landed.
	ClearSuppression()
}

const eventBuffer = 16

// publisher holds the dedupe and suppression state shared by the watcher
// implementations.
type publisher struct {
	mu            sync.Mutex
	seq           uint64
	last          string
	hasLast       bool
	suppressed    string
	hasSuppressed bool
	events        chan WatcherEvent
}

func newPublisher() publisher {
	return publisher{events: make(chan WatcherEvent, eventBuffer)}
}

func (p *publisher) Events() <-chan WatcherEvent {
	return p.events
}

func (p *publisher) Suppress(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppressed = text
	p.hasSuppressed = true
}

func (p *publisher) ClearSuppression() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppressed = ""
	p.hasSuppressed = false
}

// prime records the current clipboard content without emitting an event,
// so content already on the clipboard at startup is not processed.
func (p *publisher) prime(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = content
	p.hasLast = true
}

func (p *publisher) publish(content string) {
	p.mu.Lock()
	if p.hasSuppressed && content == p.suppressed {
		p.hasSuppressed = false
		p.last = content
		p.hasLast = true
		p.mu.Unlock()
		return
	}
	if p.hasLast && content == p.last {
		p.mu.Unlock()
		return
	}
	p.last = content
	p.hasLast = true
	p.seq++
	event := WatcherEvent{Content: content, Seq: p.seq}
	p.mu.Unlock()

	select {
	case p.events <- event:
	default:
		log.Warn("watcher: event buffer full, dropping change seq=%d", event.Seq)
	}
}

// PollWatcher observes the clipboard by reading it on a fixed interval.
type PollWatcher struct {
	publisher
	clip     Clipboard
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

const DefaultPollInterval = 500 * time.Millisecond

func NewPollWatcher(clip Clipboard, interval time.Duration) *PollWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollWatcher{
		publisher: newPublisher(),
		clip:      clip,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

func (w *PollWatcher) Start(ctx context.Context) error {
	if content, err := w.clip.Read(ctx); err == nil {
		w.prime(content)
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *PollWatcher) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			content, err := w.clip.Read(ctx)
			if err != nil {
				log.Debug("watcher: clipboard read failed: %v", err)
				continue
			}
			w.publish(content)
		}
	}
}

func (w *PollWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// SignalWatcher re-reads the clipboard whenever Notify is called, for
// platforms that can report clipboard changes (wl-paste --watch, change
// notifications from a desktop environment).
type SignalWatcher struct {
	publisher
	clip Clipboard

	notifyCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSignalWatcher(clip Clipboard) *SignalWatcher {
	return &SignalWatcher{
		publisher: newPublisher(),
		clip:      clip,
		notifyCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Notify schedules one clipboard re-read. Safe to call from any goroutine;
// notifications arriving while a read is pending coalesce.
func (w *SignalWatcher) Notify() {
	select {
	case w.notifyCh <- struct{}{}:
	default:
	}
}

func (w *SignalWatcher) Start(ctx context.Context) error {
	if content, err := w.clip.Read(ctx); err == nil {
		w.prime(content)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-w.notifyCh:
				content, err := w.clip.Read(ctx)
				if err != nil {
					log.Debug("watcher: clipboard read failed: %v", err)
					continue
				}
				w.publish(content)
			}
		}
	}()
	return nil
}

func (w *SignalWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// ChangeSignalCommand returns the platform command that prints one line per
// clipboard change, for driving a SignalWatcher. Only Wayland exposes such
// a command today.
func ChangeSignalCommand() (name string, args []string, err error) {
	if os.Getenv("WAYLAND_DISPLAY") != "" && commandExists("wl-paste") {
		return "wl-paste", []string{"--watch", "echo"}, nil
	}
	return "", nil, transcript.NewError(
		transcript.ErrClipboardIO,
		"no clipboard change signal source available (signal mode needs wl-paste on Wayland)",
	)
}

// WatchCommand starts a command whose stdout emits one line per clipboard
// change and calls Notify for each line. It returns once the command has
// started; the command is killed when ctx is cancelled.
func (w *SignalWatcher) WatchCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return transcript.NewErrorWithCause(transcript.ErrClipboardIO, "change signal pipe failed", err)
	}
	if err := cmd.Start(); err != nil {
		return transcript.NewErrorWithCause(transcript.ErrClipboardIO, "change signal command failed to start", err)
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			w.Notify()
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			log.Warn("watcher: change signal command exited: %v", err)
		}
	}()
	return nil
}
