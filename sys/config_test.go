package sys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTuning_Defaults(t *testing.T) {
	tuning, err := LoadTuning([]string{"", filepath.Join(t.TempDir(), "missing.toml")})
	require.NoError(t, err)

	assert.Equal(t, CacheTuning{TTL: time.Hour, MaxSize: 1000, SweepInterval: 10 * time.Minute}, tuning.CacheSettings())
	assert.Equal(t, RetryTuning{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}, tuning.RetrySettings())
	assert.Equal(t, PlaybackTuning{PlaylistLimit: 100, SearchTimeout: 10 * time.Second}, tuning.PlaybackSettings())
	assert.Equal(t, HealthTuning{Interval: time.Minute, MemoryWarnMB: 450, ReportInterval: time.Hour}, tuning.HealthSettings())
}

func TestLoadTuning_LastFileWins(t *testing.T) {
	base := writeFile(t, "base.toml", `
[cache]
ttl = "30m"
max_size = 50

[retry]
max_attempts = 5
multiplier = 1.5
`)
	override := writeFile(t, "override.toml", `
[cache]
max_size = 200

[playback]
playlist_limit = 25
search_timeout = "3s"
`)

	tuning, err := LoadTuning([]string{base, override})
	require.NoError(t, err)

	cache := tuning.CacheSettings()
	assert.Equal(t, 30*time.Minute, cache.TTL)
	assert.Equal(t, 200, cache.MaxSize)
	assert.Equal(t, 10*time.Minute, cache.SweepInterval)

	retry := tuning.RetrySettings()
	assert.Equal(t, 5, retry.MaxAttempts)
	assert.InDelta(t, 1.5, retry.Multiplier, 1e-9)
	assert.Equal(t, time.Second, retry.InitialDelay)

	playback := tuning.PlaybackSettings()
	assert.Equal(t, 25, playback.PlaylistLimit)
	assert.Equal(t, 3*time.Second, playback.SearchTimeout)
}

func TestLoadTuning_BadFile(t *testing.T) {
	bad := writeFile(t, "bad.toml", "[cache\nttl = ")
	_, err := LoadTuning([]string{bad})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{Token: "t"}, false},
		{"ok with guild", Config{Token: "t", GuildID: "123456789012345678"}, false},
		{"missing token", Config{}, true},
		{"short guild", Config{Token: "t", GuildID: "1234"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHasSpotify(t *testing.T) {
	assert.False(t, (&Config{SpotifyClientID: "id"}).HasSpotify())
	assert.True(t, (&Config{SpotifyClientID: "id", SpotifyClientSecret: "secret"}).HasSpotify())
}
