// Package clipboard reads and writes the system clipboard through the
// platform's clipboard utility (wl-paste/wl-copy on Wayland, xclip on X11,
// pbpaste/pbcopy on macOS) and watches it for changes.
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/MimeLyc/clipscribe/internal/transcript"
)

// Clipboard is the capability the watcher and monitor depend on.
type Clipboard interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
}

type commandSpec struct {
	name string
	args []string
}

// SystemClipboard shells out to the detected clipboard utility.
type SystemClipboard struct {
	read  commandSpec
	write commandSpec
}

// NewSystemClipboard probes for a usable clipboard utility.
func NewSystemClipboard() (*SystemClipboard, error) {
	if runtime.GOOS == "darwin" {
		return &SystemClipboard{
			read:  commandSpec{name: "pbpaste"},
			write: commandSpec{name: "pbcopy"},
		}, nil
	}

	if os.Getenv("WAYLAND_DISPLAY") != "" && commandExists("wl-paste") {
		return &SystemClipboard{
			read:  commandSpec{name: "wl-paste", args: []string{"-n"}},
			write: commandSpec{name: "wl-copy"},
		}, nil
	}
	if commandExists("xclip") {
		return &SystemClipboard{
			read:  commandSpec{name: "xclip", args: []string{"-selection", "clipboard", "-o"}},
			write: commandSpec{name: "xclip", args: []string{"-selection", "clipboard"}},
		}, nil
	}
	if commandExists("xsel") {
		return &SystemClipboard{
			read:  commandSpec{name: "xsel", args: []string{"--clipboard", "--output"}},
			write: commandSpec{name: "xsel", args: []string{"--clipboard", "--input"}},
		}, nil
	}
	return nil, transcript.NewError(
		transcript.ErrClipboardIO,
		"no clipboard utility found (install wl-clipboard, xclip or xsel)",
	)
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Read returns the current clipboard text. An empty clipboard reads as "".
func (c *SystemClipboard) Read(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.read.name, c.read.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && isEmptyClipboardExit(stderr.String()) {
			return "", nil
		}
		return "", transcript.NewErrorWithCause(transcript.ErrClipboardIO, "clipboard read failed", err).
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// isEmptyClipboardExit tells the utilities' "clipboard holds no text" exit
// apart from genuine failures like a missing display. The empty-clipboard
// diagnostics are stable across wl-paste, xclip and xsel; anything else on
// stderr is a real error.
func isEmptyClipboardExit(stderr string) bool {
	msg := strings.ToLower(strings.TrimSpace(stderr))
	if msg == "" {
		return true
	}
	for _, marker := range []string{
		"no selection",
		"nothing is copied",
		"there is no owner",
		"target string not available",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *SystemClipboard) Write(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.write.name, c.write.args...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return transcript.NewErrorWithCause(transcript.ErrClipboardIO, "clipboard write failed", err)
	}
	return nil
}
