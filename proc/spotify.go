package proc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/leeineian/jukebox/sys"
)

// SpotifyLinkKind is the kind of object a Spotify link points at.
type SpotifyLinkKind string

const (
	SpotifyTrackLink    SpotifyLinkKind = "track"
	SpotifyPlaylistLink SpotifyLinkKind = "playlist"
	SpotifyAlbumLink    SpotifyLinkKind = "album"
)

// ParseSpotifyLink understands open.spotify.com links (with or without a
// locale segment) and spotify: URIs.
func ParseSpotifyLink(s string) (SpotifyLinkKind, spotify.ID, bool) {
	s = strings.TrimSpace(s)

	var parts []string
	if rest, ok := strings.CutPrefix(s, "spotify:"); ok {
		parts = strings.Split(rest, ":")
	} else {
		u, err := url.Parse(s)
		if err != nil || !strings.EqualFold(u.Hostname(), "open.spotify.com") {
			return "", "", false
		}
		parts = strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
	}
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}

	kind := SpotifyLinkKind(parts[0])
	switch kind {
	case SpotifyTrackLink, SpotifyPlaylistLink, SpotifyAlbumLink:
		return kind, spotify.ID(parts[1]), true
	}
	return "", "", false
}

func IsSpotifyURL(s string) bool {
	_, _, ok := ParseSpotifyLink(s)
	return ok
}

// trackSearcher finds a playable YouTube copy for a query.
type trackSearcher interface {
	Search(ctx context.Context, query, requester string) (Track, error)
}

// Spotify reads metadata from the Spotify Web API and maps every track onto
// its YouTube counterpart.
type Spotify struct {
	client  *spotify.Client
	search  trackSearcher
	caches  *CacheManager
	retrier *Retrier
	policy  RetryPolicy
	limiter *rate.Limiter
	limit   int
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	Search       trackSearcher
	Caches       *CacheManager
	Retrier      *Retrier
	Policy       RetryPolicy
	Limit        int
	// Options are passed to spotify.New.
	Options []spotify.ClientOption
}

// NewSpotify builds a client authenticated with the client-credentials flow.
func NewSpotify(ctx context.Context, cfg SpotifyConfig) *Spotify {
	auth := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return newSpotify(spotify.New(auth.Client(ctx), cfg.Options...), cfg)
}

func newSpotify(client *spotify.Client, cfg SpotifyConfig) *Spotify {
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultPlaylistLimit
	}
	if cfg.Retrier == nil {
		cfg.Retrier = NewRetrier()
	}
	return &Spotify{
		client:  client,
		search:  cfg.Search,
		caches:  cfg.Caches,
		retrier: cfg.Retrier,
		policy:  cfg.Policy,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		limit:   cfg.Limit,
	}
}

func metadataFrom(t spotify.SimpleTrack, album string) SpotifyTrack {
	artist := "Unknown Artist"
	if len(t.Artists) > 0 && t.Artists[0].Name != "" {
		artist = t.Artists[0].Name
	}
	name := t.Name
	if name == "" {
		name = "Unknown"
	}
	return SpotifyTrack{
		Name:     name,
		Artist:   artist,
		Album:    album,
		Duration: time.Duration(t.Duration) * time.Millisecond,
	}
}

func (s *Spotify) remember(link string, m SpotifyTrack) {
	if s.caches != nil && link != "" {
		s.caches.Spotify.Set(link, m)
	}
}

// Track resolves a single Spotify track link.
func (s *Spotify) Track(ctx context.Context, link, requester string) (Track, error) {
	kind, id, ok := ParseSpotifyLink(link)
	if !ok || kind != SpotifyTrackLink {
		return Track{}, ErrUnsupportedLink
	}

	var meta SpotifyTrack
	if s.caches != nil {
		meta, ok = s.caches.Spotify.Get(link)
	}
	if !ok {
		full, err := Retry(ctx, s.retrier, "spotify-track-"+id.String(), s.policy, func(ctx context.Context) (*spotify.FullTrack, error) {
			return s.client.GetTrack(ctx, id)
		})
		if err != nil {
			return Track{}, fmt.Errorf("spotify track %s: %w", id, err)
		}
		meta = metadataFrom(full.SimpleTrack, full.Album.Name)
		s.remember(link, meta)
	}

	return s.search.Search(ctx, meta.Query(), requester)
}

// Collection resolves every track of a playlist or album link. Tracks that
// cannot be found on YouTube are skipped.
func (s *Spotify) Collection(ctx context.Context, link, requester string) ([]Track, error) {
	kind, id, ok := ParseSpotifyLink(link)
	if !ok {
		return nil, ErrUnsupportedLink
	}

	var (
		metas []SpotifyTrack
		err   error
	)
	switch kind {
	case SpotifyPlaylistLink:
		metas, err = s.playlist(ctx, id)
	case SpotifyAlbumLink:
		metas, err = s.album(ctx, id)
	default:
		return nil, ErrUnsupportedLink
	}
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(metas))
	for _, m := range metas {
		if err := s.limiter.Wait(ctx); err != nil {
			return tracks, err
		}
		t, err := s.search.Search(ctx, m.Query(), requester)
		if err != nil {
			sys.LogResolver("No YouTube match for %q: %v", m.Query(), err)
			continue
		}
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return nil, ErrNoResults
	}
	return tracks, nil
}

func (s *Spotify) playlist(ctx context.Context, id spotify.ID) ([]SpotifyTrack, error) {
	page, err := Retry(ctx, s.retrier, "spotify-playlist-"+id.String(), s.policy, func(ctx context.Context) (*spotify.PlaylistItemPage, error) {
		return s.client.GetPlaylistItems(ctx, id, spotify.Limit(min(s.limit, 100)))
	})
	if err != nil {
		return nil, fmt.Errorf("spotify playlist %s: %w", id, err)
	}

	var out []SpotifyTrack
	for {
		for _, item := range page.Items {
			ft := item.Track.Track
			if ft == nil {
				continue
			}
			m := metadataFrom(ft.SimpleTrack, ft.Album.Name)
			s.remember(ft.ExternalURLs["spotify"], m)
			out = append(out, m)
			if len(out) >= s.limit {
				return out, nil
			}
		}
		if err := s.client.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				return out, nil
			}
			return out, fmt.Errorf("spotify playlist %s: %w", id, err)
		}
	}
}

func (s *Spotify) album(ctx context.Context, id spotify.ID) ([]SpotifyTrack, error) {
	album, err := Retry(ctx, s.retrier, "spotify-album-"+id.String(), s.policy, func(ctx context.Context) (*spotify.FullAlbum, error) {
		return s.client.GetAlbum(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("spotify album %s: %w", id, err)
	}

	page := &album.Tracks
	var out []SpotifyTrack
	for {
		for _, t := range page.Tracks {
			m := metadataFrom(t, album.Name)
			s.remember(t.ExternalURLs["spotify"], m)
			out = append(out, m)
			if len(out) >= s.limit {
				return out, nil
			}
		}
		if err := s.client.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				return out, nil
			}
			return out, fmt.Errorf("spotify album %s: %w", id, err)
		}
	}
}
