package home

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "live"},
		{-time.Second, "live"},
		{59 * time.Second, "0:59"},
		{3*time.Minute + 32*time.Second, "3:32"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{1500 * time.Millisecond, "0:02"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), tt.in.String())
	}
}

func TestFormatNowPlaying(t *testing.T) {
	assert.Contains(t, formatNowPlaying(proc.Snapshot{}), "Nothing playing")

	snap := proc.Snapshot{}
	snap.Current = &proc.Track{Title: "Song", URL: "https://youtu.be/x", Duration: 90 * time.Second, RequestedBy: "alice"}
	snap.Status = proc.StatusPlaying

	got := formatNowPlaying(snap)
	assert.True(t, strings.HasPrefix(got, "▶️"))
	assert.Contains(t, got, "[Song](https://youtu.be/x) `1:30`")
	assert.Contains(t, got, "requested by alice")

	snap.Status = proc.StatusPaused
	assert.True(t, strings.HasPrefix(formatNowPlaying(snap), "⏸️"))
}

func TestFormatUpcoming(t *testing.T) {
	assert.Contains(t, formatUpcoming(nil), "_Empty_")

	var pending []proc.Track
	for i := range 12 {
		pending = append(pending, proc.Track{Title: fmt.Sprintf("T%d", i+1), URL: "u", Duration: time.Minute})
	}
	got := formatUpcoming(pending)

	assert.Contains(t, got, "`1.` [T1](u) `1:00`")
	assert.Contains(t, got, "`10.` [T10](u)")
	assert.NotContains(t, got, "[T11]")
	assert.Contains(t, got, "...and 2 more")
	assert.Contains(t, got, "12 tracks · 12:00 total")
}

func TestFormatHistory(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	got := formatHistory([]sys.PlayRecord{
		{Title: "Newest", URL: "a", RequestedBy: "bob", PlayedAt: now.Add(-2 * time.Minute)},
		{Title: "Older", URL: "b", RequestedBy: "eve", PlayedAt: now.Add(-3 * time.Hour)},
	}, now)

	lines := strings.Split(got, "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "`1.` [Newest](a) · bob · 2 minutes ago", lines[1])
	assert.Equal(t, "`2.` [Older](b) · eve · 3 hours ago", lines[2])
}

func TestFormatHealth(t *testing.T) {
	got := formatHealth(proc.HealthReport{
		Uptime:    "2 hours",
		Memory:    "64 MiB",
		Errors:    3,
		LastError: "boom",
		Sessions:  2,
	}, []proc.CacheStats{{Name: "media", Size: 4, MaxSize: 1000, Hits: 7, Misses: 2}}, 1, 1234, 42*time.Millisecond)

	assert.Contains(t, got, "**Uptime:** 2 hours")
	assert.Contains(t, got, "**Last error:** `boom`")
	assert.Contains(t, got, "**Retrying:** 1")
	assert.Contains(t, got, "**Tracks played:** 1,234")
	assert.Contains(t, got, "**Latency:** 42ms")
	assert.Contains(t, got, "**media cache:** 4/1000 (7 hits, 2 misses)")
	assert.False(t, strings.HasSuffix(got, "\n"))

	assert.NotContains(t, formatHealth(proc.HealthReport{}, nil, 0, 0, 0), "Last error")
}

func TestPlayReply(t *testing.T) {
	one := []proc.Track{{Title: "Song"}}

	tests := []struct {
		name  string
		err   error
		added []proc.Track
		want  string
	}{
		{"busy", proc.ErrLockBusy, nil, sys.MsgPlayBusy},
		{"no results", fmt.Errorf("search: %w", proc.ErrNoResults), nil, sys.MsgPlayNoResults},
		{"spotify off", proc.ErrSpotifyDisabled, nil, sys.MsgPlaySpotifyOff},
		{"unsupported", proc.ErrUnsupportedLink, nil, sys.MsgPlayUnsupported},
		{"join", fmt.Errorf("%w: %w", errJoin, errors.New("timeout")), nil, sys.MsgPlayJoinFailed},
		{"other", errors.New("boom"), nil, sys.MsgPlayFailed},
		{"one", nil, one, fmt.Sprintf(sys.MsgPlayAddedOne, "Song")},
		{"many", nil, append(one, proc.Track{}), fmt.Sprintf(sys.MsgPlayAddedMany, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, playReply(tt.err, tt.added))
		})
	}
}
