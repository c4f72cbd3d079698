package proc

import (
	"context"
	"strings"
)

type videoSource interface {
	Search(ctx context.Context, query, requester string) (Track, error)
	VideoInfo(ctx context.Context, link, requester string) (Track, error)
	Playlist(ctx context.Context, link, requester string) ([]Track, error)
}

type spotifySource interface {
	Track(ctx context.Context, link, requester string) (Track, error)
	Collection(ctx context.Context, link, requester string) ([]Track, error)
}

// Lookup turns user input into queueable tracks.
type Lookup struct {
	youtube videoSource
	spotify spotifySource
}

// NewLookup builds a lookup. sp may be nil when Spotify is not configured.
func NewLookup(yt *YouTube, sp *Spotify) *Lookup {
	l := &Lookup{youtube: yt}
	if sp != nil {
		l.spotify = sp
	}
	return l
}

// Find routes input by shape: Spotify links, YouTube playlists, YouTube
// videos, and everything else as a search query.
func (l *Lookup) Find(ctx context.Context, input, requester string) ([]Track, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrNoResults
	}

	if kind, _, ok := ParseSpotifyLink(input); ok {
		if l.spotify == nil {
			return nil, ErrSpotifyDisabled
		}
		if kind == SpotifyTrackLink {
			return one(l.spotify.Track(ctx, input, requester))
		}
		return l.spotify.Collection(ctx, input, requester)
	}

	if IsYouTubeURL(input) {
		if IsYouTubePlaylist(input) {
			return l.youtube.Playlist(ctx, input, requester)
		}
		return one(l.youtube.VideoInfo(ctx, input, requester))
	}

	return one(l.youtube.Search(ctx, input, requester))
}

func one(t Track, err error) ([]Track, error) {
	if err != nil {
		return nil, err
	}
	return []Track{t}, nil
}
