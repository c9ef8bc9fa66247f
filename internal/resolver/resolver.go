// Package resolver classifies clipboard text as a YouTube video URL and
// extracts the canonical video identifier from it. Resolution is pure: no
// I/O, no side effects, and unrecognized text is a classification result
// rather than an error.
package resolver

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/MimeLyc/clipscribe/internal/transcript"
)

// All recognized URL shapes extract the same 11-character identifier.
// Patterns are anchored so lookalike hosts (notyoutube.com,
// youtube.com.evil.tld) never match.
var videoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/watch\?[^\s]*?v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/v/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^(?:https?://)?youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

var videoIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// Resolve extracts a video identifier from arbitrary text. ok is false when
// the text is not a recognized video URL.
func Resolve(text string) (id transcript.VideoID, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	for _, pattern := range videoURLPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return transcript.VideoID(m[1]), true
		}
	}

	// Fallback: a youtube.com URL with the id in the v query parameter but
	// an otherwise unrecognized path shape.
	parsed, err := url.Parse(text)
	if err != nil {
		return "", false
	}
	switch parsed.Hostname() {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
	default:
		return "", false
	}
	v := parsed.Query().Get("v")
	if videoIDRe.MatchString(v) {
		return transcript.VideoID(v), true
	}

	return "", false
}

// IsVideoURL reports whether text resolves to a video identifier.
func IsVideoURL(text string) bool {
	_, ok := Resolve(text)
	return ok
}
