package proc

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_KeysAreNormalized(t *testing.T) {
	c := NewCache[string]("test", time.Hour, 10)
	c.Set("  Never Gonna Give You Up ", "rick")

	v, ok := c.Get("never gonna give you up")
	require.True(t, ok)
	assert.Equal(t, "rick", v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ExpiredEntryIsMissAndRemoved(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ttl := 5 * time.Minute
		c := NewCache[int]("test", ttl, 10)
		c.Set("k", 1)

		time.Sleep(ttl)
		_, ok := c.Get("k")
		assert.True(t, ok, "entry exactly ttl old is still fresh")

		time.Sleep(time.Millisecond)
		_, ok = c.Get("k")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len(), "stale entry must be deleted on read")

		st := c.Stats()
		assert.Equal(t, uint64(1), st.Hits)
		assert.Equal(t, uint64(1), st.Misses)
	})
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewCache[string]("test", time.Hour, 3)
		for _, k := range []string{"a", "b", "c"} {
			c.Set(k, k)
			time.Sleep(time.Millisecond)
		}

		// Refreshing "a" makes "b" the oldest.
		c.Set("a", "a2")
		time.Sleep(time.Millisecond)
		assert.Equal(t, 3, c.Len(), "overwriting an existing key never evicts")

		c.Set("d", "d")
		assert.Equal(t, 3, c.Len())

		_, ok := c.Get("b")
		assert.False(t, ok)
		for _, k := range []string{"a", "c", "d"} {
			_, ok := c.Get(k)
			assert.True(t, ok, k)
		}
	})
}

func TestCache_EvictionTieBreaksByInsertionOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// The fake clock does not move between these inserts.
		c := NewCache[int]("test", time.Hour, 2)
		c.Set("first", 1)
		c.Set("second", 2)
		c.Set("third", 3)

		_, ok := c.Get("first")
		assert.False(t, ok)
		assert.Equal(t, 2, c.Len())
	})
}

func TestCache_SweepRemovesOnlyExpired(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewCache[int]("test", time.Minute, 10)
		c.Set("old", 1)
		time.Sleep(30 * time.Second)
		c.Set("new", 2)
		time.Sleep(31 * time.Second)

		assert.Equal(t, 1, c.Sweep())
		assert.Equal(t, 1, c.Len())
		_, ok := c.Get("new")
		assert.True(t, ok)
	})
}

func TestCacheManager_RunSweepsBothCaches(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := NewCacheManager(time.Hour, 10, 10*time.Minute)
		m.Media.Set("search:lofi", Media{Track: Track{Title: "lofi"}})
		m.Spotify.Set("spotify:track:1", SpotifyTrack{Name: "Song", Artist: "Artist"})

		ctx, cancel := context.WithCancel(t.Context())
		go m.Run(ctx)

		time.Sleep(61 * time.Minute)
		synctest.Wait()
		assert.Equal(t, 1, m.Media.Len(), "not swept before the next tick")

		time.Sleep(10 * time.Minute)
		synctest.Wait()
		assert.Equal(t, 0, m.Media.Len())
		assert.Equal(t, 0, m.Spotify.Len())

		cancel()
		<-m.Done()
	})
}

func TestCacheManager_CloseClearsAndStopsSweeper(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := NewCacheManager(time.Hour, 10, time.Minute)
		m.Media.Set("a", Media{})
		m.Spotify.Set("b", SpotifyTrack{})

		go m.Run(t.Context())
		m.Close()
		<-m.Done()

		assert.Equal(t, 0, m.Media.Len())
		assert.Equal(t, 0, m.Spotify.Len())
		m.Close()

		stats := m.Stats()
		require.Len(t, stats, 2)
		assert.Equal(t, "media", stats[0].Name)
		assert.Equal(t, "spotify", stats[1].Name)
	})
}
