package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// VideoID is the canonical identifier extracted from a video URL.
type VideoID string

func (id VideoID) String() string { return string(id) }

// Segment is a single timed piece of transcript text.
type Segment struct {
	Start time.Duration `json:"start"`
	Text  string        `json:"text"`
}

// Transcript is an ordered sequence of timed segments, immutable once fetched.
type Transcript struct {
	VideoID  VideoID   `json:"video_id"`
	Language string    `json:"language"`
	IsAuto   bool      `json:"is_auto"`
	Segments []Segment `json:"segments"`
}

// FetchOptions select the language search behavior and the rendered output
// shape. The options are part of the cache key, so differing options never
// collide.
type FetchOptions struct {
	// PreferredLanguage is a BCP 47 tag, or "auto" to accept any transcript.
	PreferredLanguage string `json:"preferred_language"`
	// AllowAutoFallback permits falling back to an auto-generated transcript
	// in any language when nothing matches the preferred one.
	AllowAutoFallback bool `json:"allow_auto_fallback"`
	// IncludeTimestamps prefixes each rendered segment with its start time.
	IncludeTimestamps bool `json:"include_timestamps"`
}

// PreferredLanguageAuto accepts any available transcript, manual first.
const PreferredLanguageAuto = "auto"

// CacheKey derives the deterministic cache key for a video/options pair.
func CacheKey(id VideoID, opts FetchOptions) string {
	raw := fmt.Sprintf("%s|%s|%s|%s",
		id,
		opts.PreferredLanguage,
		boolFlag(opts.AllowAutoFallback),
		boolFlag(opts.IncludeTimestamps),
	)
	digest := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:])
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// FormatTimestamp renders a start time as MM:SS, or HH:MM:SS beyond one
// hour, floor-rounded to the second.
func FormatTimestamp(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// Render produces the clipboard text for the transcript. With timestamps,
// each segment becomes its own "[MM:SS] text" line; without, segments are
// joined by single spaces in original order.
func (t Transcript) Render(opts FetchOptions) string {
	if len(t.Segments) == 0 {
		return ""
	}

	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if opts.IncludeTimestamps {
			parts = append(parts, fmt.Sprintf("[%s] %s", FormatTimestamp(seg.Start), seg.Text))
		} else {
			parts = append(parts, seg.Text)
		}
	}

	if opts.IncludeTimestamps {
		return strings.Join(parts, "\n")
	}
	return strings.Join(parts, " ")
}
