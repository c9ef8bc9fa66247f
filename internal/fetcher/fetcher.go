// Package fetcher retrieves a transcript for a resolved video, walking a
// language fallback order until one download succeeds, and renders it per
// the fetch options. It performs no caching; that belongs to the monitor.
package fetcher

import (
	"context"
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/MimeLyc/clipscribe/internal/provider"
	"github.com/MimeLyc/clipscribe/internal/transcript"
	"github.com/MimeLyc/clipscribe/pkg/log"
)

type Fetcher struct {
	provider provider.Provider
}

func New(p provider.Provider) *Fetcher {
	return &Fetcher{provider: p}
}

// Fetch retrieves the best available transcript for the video.
//
// Search order, first success wins:
//  1. the exact preferred language
//  2. a regional variant of the same language family
//  3. the video's original/default-language transcript
//  4. any auto-generated transcript, if auto fallback is permitted
//
// A candidate whose download fails transiently is skipped and the walk
// continues; that failure is never surfaced once any later step succeeds.
func (f *Fetcher) Fetch(ctx context.Context, id transcript.VideoID, opts transcript.FetchOptions) (transcript.Transcript, error) {
	infos, err := f.provider.List(ctx, id)
	if err != nil {
		return transcript.Transcript{}, asPipelineError(err, "list transcripts")
	}

	candidates := orderCandidates(infos, opts)
	if len(candidates) == 0 {
		return transcript.Transcript{}, transcript.NewError(transcript.ErrNoTranscript,
			"no transcript acceptable under fetch options").
			WithContext("video_id", id.String())
	}

	var downloadErr error
	for _, candidate := range candidates {
		segments, err := f.provider.Download(ctx, id, candidate.Language)
		if err != nil {
			if transcript.IsErrorType(err, transcript.ErrLanguageUnavailable) {
				log.Debug("fetch %s: language %s unavailable, continuing fallback", id, candidate.Language)
				continue
			}
			log.Warn("fetch %s: download %s failed: %v", id, candidate.Language, err)
			downloadErr = err
			continue
		}
		if len(segments) == 0 {
			continue
		}

		return transcript.Transcript{
			VideoID:  id,
			Language: resolveLanguage(candidate.Language, segments),
			IsAuto:   candidate.IsAutoGenerated,
			Segments: segments,
		}, nil
	}

	// The provider listed transcripts but every download attempt failed.
	// That is a transport problem, not an absence of transcripts.
	if downloadErr != nil {
		return transcript.Transcript{}, transcript.WrapError(downloadErr,
			transcript.ErrProviderUnavailable, "all transcript downloads failed").
			WithContext("video_id", id.String())
	}
	return transcript.Transcript{}, transcript.NewError(transcript.ErrNoTranscript,
		"no transcript acceptable under fetch options").
		WithContext("video_id", id.String())
}

// FetchText fetches and renders in one step.
func (f *Fetcher) FetchText(ctx context.Context, id transcript.VideoID, opts transcript.FetchOptions) (string, error) {
	tr, err := f.Fetch(ctx, id, opts)
	if err != nil {
		return "", err
	}
	return tr.Render(opts), nil
}

// orderCandidates builds the fallback sequence, deduplicated, most
// preferred first.
func orderCandidates(infos []provider.TranscriptInfo, opts transcript.FetchOptions) []provider.TranscriptInfo {
	ordered := make([]provider.TranscriptInfo, 0, len(infos))
	seen := make(map[string]bool, len(infos))
	add := func(info provider.TranscriptInfo) {
		key := info.Language + "|" + boolKey(info.IsAutoGenerated)
		if seen[key] {
			return
		}
		seen[key] = true
		ordered = append(ordered, info)
	}

	if opts.PreferredLanguage == transcript.PreferredLanguageAuto {
		// Accept anything, manually authored transcripts first.
		for _, info := range infos {
			if !info.IsAutoGenerated {
				add(info)
			}
		}
		for _, info := range infos {
			add(info)
		}
		return ordered
	}

	// 1. Exact preferred language, manual before auto.
	for _, info := range infos {
		if info.Language == opts.PreferredLanguage && !info.IsAutoGenerated {
			add(info)
		}
	}
	for _, info := range infos {
		if info.Language == opts.PreferredLanguage {
			add(info)
		}
	}

	// 2. Same language family (regional variants), manually authored only.
	// Auto-generated family members are reachable through step 4.
	if preferredBase, ok := baseOf(opts.PreferredLanguage); ok {
		for _, info := range infos {
			if info.IsAutoGenerated {
				continue
			}
			if base, ok := baseOf(info.Language); ok && base == preferredBase {
				add(info)
			}
		}
	}

	// 3. The video's original/default transcript. Auto-generated defaults
	// fall through to step 4.
	for _, info := range infos {
		if info.IsDefault && !info.IsAutoGenerated {
			add(info)
		}
	}

	// 4. Any auto-generated transcript, any language.
	if opts.AllowAutoFallback {
		for _, info := range infos {
			if info.IsAutoGenerated {
				add(info)
			}
		}
	}

	return ordered
}

func baseOf(tag string) (language.Base, bool) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return language.Base{}, false
	}
	base, confidence := parsed.Base()
	return base, confidence != language.No
}

// resolveLanguage fills in the language for tracks the provider reports as
// undetermined, by detecting it from the transcript text itself.
func resolveLanguage(reported string, segments []transcript.Segment) string {
	if reported != "" && reported != "und" {
		return reported
	}

	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(seg.Text)
		if sb.Len() > 2048 {
			break
		}
	}
	if detected := whatlanggo.DetectLang(sb.String()).Iso6391(); detected != "" {
		return detected
	}
	return reported
}

// asPipelineError keeps typed provider errors as-is and classifies anything
// else as a provider failure.
func asPipelineError(err error, message string) error {
	var perr *transcript.PipelineError
	if errors.As(err, &perr) {
		return err
	}
	return transcript.WrapError(err, transcript.ErrProviderUnavailable, message)
}

func boolKey(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
