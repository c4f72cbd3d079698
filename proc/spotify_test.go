package proc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

type recordingSearcher struct {
	mu      sync.Mutex
	queries []string
	missing map[string]bool
}

func (s *recordingSearcher) Search(_ context.Context, query, requester string) (Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.missing[query] {
		return Track{}, ErrNoResults
	}
	return Track{Title: query, URL: watchURL(query), RequestedBy: requester}, nil
}

func TestParseSpotifyLink(t *testing.T) {
	tests := []struct {
		in   string
		kind SpotifyLinkKind
		id   spotify.ID
		ok   bool
	}{
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc", SpotifyTrackLink, "4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/intl-de/album/1ATL5GLyefJaxhQzSPVrLX", SpotifyAlbumLink, "1ATL5GLyefJaxhQzSPVrLX", true},
		{"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", SpotifyPlaylistLink, "37i9dQZF1DXcBWIGoYBM5M", true},
		{"spotify:track:4uLU6hMCjMI75M1A2tKUQC", SpotifyTrackLink, "4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/artist/0OdUWJ0sBjDrqHygGUXeCF", "", "", false},
		{"https://open.spotify.com/track/", "", "", false},
		{"https://www.youtube.com/watch?v=abc", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, id, ok := ParseSpotifyLink(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
		})
	}
}

func newTestSpotify(t *testing.T, handler http.Handler, search trackSearcher, caches *CacheManager) *Spotify {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := spotify.New(srv.Client(), spotify.WithBaseURL(srv.URL+"/"))
	return newSpotify(client, SpotifyConfig{
		Search: search,
		Caches: caches,
		Policy: RetryPolicy{MaxAttempts: 1},
	})
}

func TestSpotify_TrackSearchesYouTubeAndCaches(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks/abc", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"abc","name":"Song","duration_ms":200000,"artists":[{"name":"Artist"}],"album":{"name":"Album"}}`)
	})

	caches := NewCacheManager(time.Hour, 10, time.Minute)
	search := &recordingSearcher{}
	sp := newTestSpotify(t, mux, search, caches)
	link := "https://open.spotify.com/track/abc"

	got, err := sp.Track(t.Context(), link, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Artist Song", got.Title)
	assert.Equal(t, "bob", got.RequestedBy)

	meta, ok := caches.Spotify.Get(link)
	require.True(t, ok)
	assert.Equal(t, SpotifyTrack{Name: "Song", Artist: "Artist", Album: "Album", Duration: 200 * time.Second}, meta)

	_, err = sp.Track(t.Context(), link, "bob")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup is served from the metadata cache")
	assert.Equal(t, []string{"Artist Song", "Artist Song"}, search.queries)

	_, err = sp.Track(t.Context(), "https://open.spotify.com/album/abc", "bob")
	assert.ErrorIs(t, err, ErrUnsupportedLink)
}

func TestSpotify_AlbumSkipsUnmatchedTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/albums/alb", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"alb","name":"Record","tracks":{"items":[
			{"name":"One","duration_ms":1000,"artists":[{"name":"A"}]},
			{"name":"Two","duration_ms":2000,"artists":[{"name":"B"}]},
			{"name":"Three","duration_ms":3000,"artists":[]}
		],"next":null}}`)
	})

	search := &recordingSearcher{missing: map[string]bool{"B Two": true}}
	sp := newTestSpotify(t, mux, search, nil)

	tracks, err := sp.Collection(t.Context(), "https://open.spotify.com/album/alb", "carol")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "A One", tracks[0].Title)
	assert.Equal(t, "Unknown Artist Three", tracks[1].Title)
	assert.Equal(t, []string{"A One", "B Two", "Unknown Artist Three"}, search.queries)
}

func TestSpotify_PlaylistRespectsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/pl/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"track":{"type":"track","name":"One","artists":[{"name":"A"}],"album":{"name":"X"}}},
			{"track":null},
			{"track":{"type":"track","name":"Two","artists":[{"name":"B"}],"album":{"name":"Y"}}},
			{"track":{"type":"track","name":"Three","artists":[{"name":"C"}],"album":{"name":"Z"}}}
		],"next":null}`)
	})

	search := &recordingSearcher{}
	sp := newTestSpotify(t, mux, search, nil)
	sp.limit = 2

	tracks, err := sp.Collection(t.Context(), "https://open.spotify.com/playlist/pl", "dave")
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
	assert.Equal(t, []string{"A One", "B Two"}, search.queries)
}
