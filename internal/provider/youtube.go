package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MimeLyc/clipscribe/internal/transcript"
	"github.com/MimeLyc/clipscribe/pkg/log"
)

// YouTube transcript access via the ANDROID Innertube /player endpoint:
// one POST yields the caption track list, each track carries a timedtext
// XML URL with per-line start times.

const (
	ytInnertubeURL   = "https://www.youtube.com/youtubei/v1/player"
	ytAndroidVersion = "20.10.38"
	ytAndroidUA      = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"

	maxPlayerRespBytes = 3 * 1024 * 1024
	maxTimedTextBytes  = 512 * 1024
)

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type innertubePlayerResp struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type ytTimedText struct {
	Lines []ytLine `xml:"text"`
}

type ytLine struct {
	Start float64 `xml:"start,attr"`
	Text  string  `xml:",chardata"`
}

// YouTubeProvider implements Provider against the Innertube API. Outbound
// calls are rate limited; the caption track list from List is memoized per
// video so a following Download does not repeat the /player call.
type YouTubeProvider struct {
	client    *http.Client
	limiter   *rate.Limiter
	playerURL string

	mu     sync.Mutex
	tracks map[transcript.VideoID][]captionTrack
}

type YouTubeOption func(*YouTubeProvider)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.client = client
	}
}

// WithPlayerURL overrides the Innertube player endpoint, mainly for tests.
func WithPlayerURL(url string) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.playerURL = url
	}
}

// WithRateLimit replaces the default outbound request limit.
func WithRateLimit(limiter *rate.Limiter) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.limiter = limiter
	}
}

func NewYouTubeProvider(opts ...YouTubeOption) *YouTubeProvider {
	p := &YouTubeProvider{
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 3),
		playerURL: ytInnertubeURL,
		tracks:    make(map[transcript.VideoID][]captionTrack),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *YouTubeProvider) List(ctx context.Context, id transcript.VideoID) ([]TranscriptInfo, error) {
	tracks, err := p.fetchTracks(ctx, id)
	if err != nil {
		return nil, err
	}

	infos := make([]TranscriptInfo, 0, len(tracks))
	for i, track := range tracks {
		infos = append(infos, TranscriptInfo{
			Language:        track.LanguageCode,
			IsAutoGenerated: track.Kind == "asr",
			// The player response lists the video's own transcript first.
			IsDefault: i == 0,
		})
	}
	return infos, nil
}

func (p *YouTubeProvider) Download(ctx context.Context, id transcript.VideoID, language string) ([]transcript.Segment, error) {
	p.mu.Lock()
	tracks, ok := p.tracks[id]
	p.mu.Unlock()

	if !ok {
		var err error
		tracks, err = p.fetchTracks(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	for _, track := range tracks {
		if track.LanguageCode == language {
			return p.fetchTimedText(ctx, track.BaseURL)
		}
	}
	return nil, transcript.NewError(transcript.ErrLanguageUnavailable,
		fmt.Sprintf("no caption track for language %q", language)).
		WithContext("video_id", id.String())
}

// fetchTracks POSTs the Innertube /player request and memoizes the caption
// track list for the video.
func (p *YouTubeProvider) fetchTracks(ctx context.Context, id transcript.VideoID) ([]captionTrack, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "rate limit wait")
	}

	reqBody, err := json.Marshal(innertubeReq{
		VideoID: id.String(),
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "marshal player request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.playerURL+"?prettyPrint=false", bytes.NewReader(reqBody))
	if err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "build player request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", ytAndroidUA)
	req.Header.Set("X-Youtube-Client-Name", "3")
	req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "android innertube").
			WithContext("video_id", id.String())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, transcript.NewError(transcript.ErrProviderUnavailable,
			fmt.Sprintf("player endpoint HTTP %d: %s", resp.StatusCode, snippet))
	}

	var playerResp innertubePlayerResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPlayerRespBytes)).Decode(&playerResp); err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "decode player response")
	}

	if playerResp.Captions == nil {
		reason := ""
		if playerResp.PlayabilityStatus != nil {
			reason = playerResp.PlayabilityStatus.Reason
		}
		if reason != "" {
			log.Debug("youtube: captions unavailable for %s: %s", id, reason)
		}
		return nil, transcript.NewError(transcript.ErrNoTranscript, "no captions in player response").
			WithContext("video_id", id.String())
	}
	tracks := playerResp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, transcript.NewError(transcript.ErrNoTranscript, "empty caption track list").
			WithContext("video_id", id.String())
	}

	p.mu.Lock()
	p.tracks[id] = tracks
	// The memo only needs to bridge List and the Download calls that follow
	// it; keep it from growing without bound.
	if len(p.tracks) > 32 {
		for key := range p.tracks {
			if key != id {
				delete(p.tracks, key)
			}
		}
	}
	p.mu.Unlock()

	return tracks, nil
}

// fetchTimedText downloads and parses a timedtext XML caption URL into
// ordered segments.
func (p *YouTubeProvider) fetchTimedText(ctx context.Context, baseURL string) ([]transcript.Segment, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "build timedtext request")
	}
	req.Header.Set("User-Agent", ytAndroidUA)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "fetch timedtext")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, transcript.NewError(transcript.ErrProviderUnavailable,
			fmt.Sprintf("timedtext HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedTextBytes))
	if err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "read timedtext")
	}

	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, transcript.WrapError(err, transcript.ErrProviderUnavailable, "parse timedtext XML")
	}

	segments := make([]transcript.Segment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		if line.Text == "" {
			continue
		}
		segments = append(segments, transcript.Segment{
			Start: time.Duration(line.Start * float64(time.Second)),
			Text:  line.Text,
		})
	}
	return segments, nil
}
