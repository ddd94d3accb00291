package youtube

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsYouTubeURL(t *testing.T) {
	assert.True(t, isYouTubeURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.True(t, isYouTubeURL("https://youtu.be/dQw4w9WgXcQ"))
	assert.True(t, isYouTubeURL("https://music.youtube.com/watch?v=abc"))
	assert.False(t, isYouTubeURL("https://soundcloud.com/artist/track"))
	assert.False(t, isYouTubeURL("never gonna give you up"))
}

func TestIsPlaylistURL(t *testing.T) {
	assert.True(t, isPlaylistURL("https://www.youtube.com/playlist?list=PL123"))
	assert.False(t, isPlaylistURL("https://www.youtube.com/watch?v=abc&list=PL123"))
	assert.False(t, isPlaylistURL("https://www.youtube.com/watch?v=abc"))
}

func TestCleanVideoURL(t *testing.T) {
	tests := map[string]string{
		"https://youtu.be/abc?t=42":                           "https://youtu.be/abc",
		"https://www.youtube.com/watch?v=abc&list=x&index=3":  "https://www.youtube.com/watch?v=abc",
		"https://music.youtube.com/watch?v=abc&feature=share": "https://music.youtube.com/watch?v=abc",
		"https://example.com/watch?v=abc":                     "https://example.com/watch?v=abc",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanVideoURL(in), in)
	}
}

func TestParseClock(t *testing.T) {
	assert.Equal(t, 3*time.Minute+20*time.Second, parseClock("3:20"))
	assert.Equal(t, time.Hour+5*time.Minute+20*time.Second, parseClock("1:05:20"))
	assert.Equal(t, time.Duration(0), parseClock("live"))
	assert.Equal(t, time.Duration(0), parseClock("20"))
}
