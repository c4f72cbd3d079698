package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		in         string
		isYouTube  bool
		isPlaylist bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true, false},
		{"https://youtu.be/dQw4w9WgXcQ", true, false},
		{"https://youtu.be/dQw4w9WgXcQ?list=PL123", true, false},
		{"https://music.youtube.com/watch?v=abc&list=RDabc", true, false},
		{"https://www.youtube.com/playlist?list=PL123", true, true},
		{"https://m.youtube.com/watch?list=PL123", true, true},
		{"https://example.com/watch?v=abc", false, false},
		{"never gonna give you up", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.isYouTube, IsYouTubeURL(tt.in))
			if tt.isYouTube {
				assert.Equal(t, tt.isPlaylist, IsYouTubePlaylist(tt.in))
			}
		})
	}
}

func TestParseSeconds(t *testing.T) {
	assert.Equal(t, 212*time.Second, parseSeconds("212"))
	assert.Equal(t, 213*time.Second, parseSeconds("212.6"))
	assert.Zero(t, parseSeconds("NA"))
	assert.Zero(t, parseSeconds(""))
}

func TestParseDurationColon(t *testing.T) {
	assert.Equal(t, 3*time.Minute+20*time.Second, parseDurationColon("3:20"))
	assert.Equal(t, time.Hour+5*time.Minute+20*time.Second, parseDurationColon("1:05:20"))
	assert.Zero(t, parseDurationColon("live"))
	assert.Zero(t, parseDurationColon("320"))
}

func TestFirstRow(t *testing.T) {
	out := "WARNING: something\nhttps://cdn/a\tSong\tUploader\t200\n"
	fields, ok := firstRow(out, 4)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/a", fields[0])
	assert.Equal(t, "Song", fields[1])

	_, ok = firstRow("nothing useful", 4)
	assert.False(t, ok)
}

func TestParsePlaylist(t *testing.T) {
	out := "https://www.youtube.com/watch?v=a\tFirst\t61\ta\n" +
		"https://www.youtube.com/watch?v=b\tNA\tNA\tb\n" +
		"broken line\n" +
		"https://www.youtube.com/watch?v=c\t[Private video]\tNA\tNA\n"

	tracks := parsePlaylist(out)
	require.Len(t, tracks, 2)
	assert.Equal(t, Track{
		Title:     "First",
		URL:       "https://www.youtube.com/watch?v=a",
		Duration:  61 * time.Second,
		Thumbnail: "https://i.ytimg.com/vi/a/hqdefault.jpg",
	}, tracks[0])
	assert.Equal(t, "Unknown", tracks[1].Title)
	assert.Zero(t, tracks[1].Duration)
}

func TestYouTube_SearchServedFromCache(t *testing.T) {
	caches := NewCacheManager(time.Hour, 10, time.Minute)
	y := NewYouTube(YouTubeConfig{Caches: caches})
	hit := Track{Title: "Lofi Beats", URL: watchURL("lofi")}
	caches.Media.Set("search:lofi beats", Media{Track: hit})

	got, err := y.Search(t.Context(), "  Lofi Beats ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Lofi Beats", got.Title)
	assert.Equal(t, "alice", got.RequestedBy)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Len(t, []rune(truncate("ééééééééééééé", 10)), 10)
}
