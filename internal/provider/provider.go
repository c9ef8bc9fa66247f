// Package provider defines the stable capability this application expects
// from a transcript source. Any binding (YouTube Innertube today) implements
// the same two fallible remote calls, isolating provider fragility to one
// adapter.
package provider

import (
	"context"

	"github.com/MimeLyc/clipscribe/internal/transcript"
)

// TranscriptInfo describes one transcript the provider can serve.
type TranscriptInfo struct {
	// Language is the BCP 47 tag reported by the provider.
	Language string
	// IsAutoGenerated marks ASR transcripts.
	IsAutoGenerated bool
	// IsDefault marks the video's original/default-language transcript.
	IsDefault bool
}

// Provider is the remote transcript source contract.
type Provider interface {
	// List returns the transcripts available for the video.
	List(ctx context.Context, id transcript.VideoID) ([]TranscriptInfo, error)
	// Download retrieves the timed segments for one listed language.
	Download(ctx context.Context, id transcript.VideoID, language string) ([]transcript.Segment, error)
}
