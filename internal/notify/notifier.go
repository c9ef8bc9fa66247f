// Package notify sends desktop notifications about pipeline outcomes.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/MimeLyc/clipscribe/pkg/log"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

// Notifier sends a desktop notification. Implementations must tolerate a
// missing notification backend.
type Notifier interface {
	Send(ctx context.Context, title, body string, urgency Urgency) error
}

// DesktopNotifier uses notify-send on Linux and osascript on macOS.
type DesktopNotifier struct {
	appName string
}

func NewDesktopNotifier(appName string) *DesktopNotifier {
	if appName == "" {
		appName = "clipscribe"
	}
	return &DesktopNotifier{appName: appName}
}

// Available reports whether a notification backend exists on this host.
func (n *DesktopNotifier) Available() bool {
	if runtime.GOOS == "darwin" {
		_, err := exec.LookPath("osascript")
		return err == nil
	}
	_, err := exec.LookPath("notify-send")
	return err == nil
}

func (n *DesktopNotifier) Send(ctx context.Context, title, body string, urgency Urgency) error {
	if !n.Available() {
		log.Debug("notify: no backend available, skipping %q", title)
		return nil
	}
	if runtime.GOOS == "darwin" {
		return n.sendDarwin(ctx, title, body)
	}
	return n.sendLinux(ctx, title, body, urgency)
}

func (n *DesktopNotifier) sendLinux(ctx context.Context, title, body string, urgency Urgency) error {
	if urgency == "" {
		urgency = UrgencyNormal
	}
	args := []string{
		"--app-name=" + n.appName,
		"--urgency=" + string(urgency),
		title,
		body,
	}
	return exec.CommandContext(ctx, "notify-send", args...).Run()
}

func (n *DesktopNotifier) sendDarwin(ctx context.Context, title, body string) error {
	script := fmt.Sprintf(
		"display notification %q with title %q",
		sanitizeForScript(body),
		sanitizeForScript(title),
	)
	return exec.CommandContext(ctx, "osascript", "-e", script).Run()
}

func sanitizeForScript(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// NopNotifier discards notifications. Used when notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, string, string, Urgency) error { return nil }
