package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clipscribe/internal/transcript"
)

func TestResolve_RecognizedShapes(t *testing.T) {
	const wantID = transcript.VideoID("dQw4w9WgXcQ")

	tests := []struct {
		name string
		text string
	}{
		{name: "canonical watch", text: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "watch no www", text: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "watch no scheme", text: "www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "watch extra params", text: "https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ&t=42s"},
		{name: "short link", text: "https://youtu.be/dQw4w9WgXcQ"},
		{name: "short link with t", text: "https://youtu.be/dQw4w9WgXcQ?t=30"},
		{name: "embed", text: "https://www.youtube.com/embed/dQw4w9WgXcQ"},
		{name: "legacy v path", text: "https://www.youtube.com/v/dQw4w9WgXcQ"},
		{name: "shorts", text: "https://www.youtube.com/shorts/dQw4w9WgXcQ"},
		{name: "mobile watch", text: "https://m.youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "surrounding whitespace", text: "  https://youtu.be/dQw4w9WgXcQ\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := Resolve(tt.text)
			require.True(t, ok)
			assert.Equal(t, wantID, id)
		})
	}
}

func TestResolve_AllShapesAgree(t *testing.T) {
	shapes := []string{
		"https://www.youtube.com/watch?v=a1B2c3D4e5F",
		"https://youtu.be/a1B2c3D4e5F",
		"https://www.youtube.com/embed/a1B2c3D4e5F",
	}

	var ids []transcript.VideoID
	for _, shape := range shapes {
		id, ok := Resolve(shape)
		require.True(t, ok, shape)
		ids = append(ids, id)
	}
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])
}

func TestResolve_QueryParamFallback(t *testing.T) {
	id, ok := Resolve("https://m.youtube.com/some/other/page?v=dQw4w9WgXcQ")
	require.True(t, ok)
	assert.Equal(t, transcript.VideoID("dQw4w9WgXcQ"), id)
}

func TestResolve_Rejections(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "whitespace only", text: "   \n\t"},
		{name: "plain text", text: "watch this later"},
		{name: "other site", text: "https://vimeo.com/123456789"},
		{name: "google", text: "https://google.com"},
		{name: "youtube home", text: "https://www.youtube.com/"},
		{name: "short id", text: "https://youtu.be/abc"},
		{name: "bad id charset", text: "https://www.youtube.com/watch?v=abc!defghij"},
		{name: "bare id", text: "dQw4w9WgXcQ"},
		{name: "lookalike host prefix", text: "https://notyoutube.com/watch?v=dQw4w9WgXcQ"},
		{name: "lookalike host suffix", text: "https://youtube.com.evil.tld/watch?v=dQw4w9WgXcQ"},
		{name: "lookalike query fallback", text: "https://youtube.com.evil.tld/page?v=dQw4w9WgXcQ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Resolve(tt.text)
			assert.False(t, ok)
			assert.False(t, IsVideoURL(tt.text))
		})
	}
}
