package proc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"

	"github.com/leeineian/jukebox/sys"
)

const (
	DefaultPlaylistLimit = 100
	DefaultSearchTimeout = 10 * time.Second
	maxSuggestions       = 25
)

// YouTube looks tracks up on YouTube and resolves them to audio streams.
type YouTube struct {
	caches        *CacheManager
	retrier       *Retrier
	policy        RetryPolicy
	playlistLimit int
	searchTimeout time.Duration
}

type YouTubeConfig struct {
	Caches        *CacheManager
	Retrier       *Retrier
	Policy        RetryPolicy
	PlaylistLimit int
	SearchTimeout time.Duration
}

func NewYouTube(cfg YouTubeConfig) *YouTube {
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.PlaylistLimit <= 0 {
		cfg.PlaylistLimit = DefaultPlaylistLimit
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.Retrier == nil {
		cfg.Retrier = NewRetrier()
	}
	return &YouTube{
		caches:        cfg.Caches,
		retrier:       cfg.Retrier,
		policy:        cfg.Policy,
		playlistLimit: cfg.PlaylistLimit,
		searchTimeout: cfg.SearchTimeout,
	}
}

func (y *YouTube) retryPolicy() RetryPolicy {
	p := y.policy
	p.OnRetry = func(attempt int, err error) {
		sys.LogResolver("Attempt %d failed: %v", attempt, err)
	}
	return p
}

func (y *YouTube) cached(key string) (Track, bool) {
	if y.caches == nil {
		return Track{}, false
	}
	m, ok := y.caches.Media.Get(key)
	return m.Track, ok
}

func (y *YouTube) remember(key string, t Track) {
	if y.caches != nil {
		y.caches.Media.Set(key, Media{Track: t})
	}
}

// Resolve returns a direct audio stream for the track. Retries are the caller's job.
func (y *YouTube) Resolve(ctx context.Context, t Track) (Media, error) {
	res, err := ytdlp.New().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		Format("bestaudio[ext=webm]/bestaudio").
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", t.URL)
	if err != nil {
		return Media{}, fmt.Errorf("yt-dlp: %w", err)
	}

	fields, ok := firstRow(res.Stdout, 4)
	if !ok || !strings.HasPrefix(fields[0], "http") {
		return Media{}, ErrNotPlayable
	}

	m := Media{Track: t, StreamURL: fields[0]}
	if m.Title == "" {
		m.Title = fields[1]
	}
	if m.Duration == 0 {
		m.Duration = parseSeconds(fields[3])
	}
	return m, nil
}

// Search returns the top YouTube video for a free-text query.
func (y *YouTube) Search(ctx context.Context, query, requester string) (Track, error) {
	query = strings.TrimSpace(query)
	cacheKey := "search:" + query
	if t, ok := y.cached(cacheKey); ok {
		return withRequester(t, requester), nil
	}

	t, err := Retry(ctx, y.retrier, "youtube-search-"+query, y.retryPolicy(), func(ctx context.Context) (Track, error) {
		ctx, cancel := context.WithTimeout(ctx, y.searchTimeout)
		defer cancel()

		r, err := ytsearch.NewClient(nil).Search(ctx, query)
		if err != nil {
			return Track{}, err
		}
		for _, v := range r.Results {
			if v.VideoID == "" {
				continue
			}
			return Track{
				Title:     v.Title,
				URL:       watchURL(v.VideoID),
				Duration:  parseDurationColon(v.Duration),
				Thumbnail: thumbnailURL(v.VideoID),
			}, nil
		}
		return Track{}, ErrNoResults
	})
	if err != nil {
		return Track{}, err
	}

	y.remember(cacheKey, t)
	return withRequester(t, requester), nil
}

// VideoInfo reads title and duration of a single video link.
func (y *YouTube) VideoInfo(ctx context.Context, link, requester string) (Track, error) {
	cacheKey := "info:" + link
	if t, ok := y.cached(cacheKey); ok {
		return withRequester(t, requester), nil
	}

	t, err := Retry(ctx, y.retrier, "youtube-info-"+link, y.retryPolicy(), func(ctx context.Context) (Track, error) {
		res, err := ytdlp.New().
			Print("%(title)s\t%(uploader)s\t%(duration)s\t%(id)s").
			NoPlaylist().
			NoWarnings().
			IgnoreConfig().
			Run(ctx, "--skip-download", link)
		if err != nil {
			return Track{}, fmt.Errorf("yt-dlp: %w", err)
		}
		fields, ok := firstRow(res.Stdout, 4)
		if !ok {
			return Track{}, ErrNoResults
		}
		return Track{
			Title:     fields[0],
			URL:       watchURL(fields[3]),
			Duration:  parseSeconds(fields[2]),
			Thumbnail: thumbnailURL(fields[3]),
		}, nil
	})
	if err != nil {
		return Track{}, err
	}

	y.remember(cacheKey, t)
	return withRequester(t, requester), nil
}

// Playlist lists the entries of a playlist link, capped at the playlist limit.
func (y *YouTube) Playlist(ctx context.Context, link, requester string) ([]Track, error) {
	tracks, err := Retry(ctx, y.retrier, "youtube-playlist-"+link, y.retryPolicy(), func(ctx context.Context) ([]Track, error) {
		res, err := ytdlp.New().
			FlatPlaylist().
			Print("%(url)s\t%(title)s\t%(duration)s\t%(id)s").
			PlaylistItems(fmt.Sprintf("1-%d", y.playlistLimit)).
			NoWarnings().
			IgnoreConfig().
			Run(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("yt-dlp: %w", err)
		}
		return parsePlaylist(res.Stdout), nil
	})
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ErrNoResults
	}

	for i := range tracks {
		y.remember("info:"+tracks[i].URL, tracks[i])
		tracks[i].RequestedBy = requester
	}
	return tracks, nil
}

// Suggestion is one autocomplete choice.
type Suggestion struct {
	Name string
	URL  string
}

// Suggest queries YouTube Music for autocomplete choices. It gives up when ctx ends.
func (y *YouTube) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	type result struct {
		out []Suggestion
		err error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			ch <- result{err: err}
			return
		}
		out := make([]Suggestion, 0, maxSuggestions)
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			name := v.Title
			if len(v.Artists) > 0 {
				name += " - " + v.Artists[0].Name
			}
			out = append(out, Suggestion{Name: truncate(name, 100), URL: watchURL(v.VideoID)})
			if len(out) == maxSuggestions {
				break
			}
		}
		ch <- result{out: out}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.out, res.err
	}
}

func withRequester(t Track, requester string) Track {
	t.RequestedBy = requester
	return t
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func thumbnailURL(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}

// firstRow returns the first tab-separated stdout line with at least n fields.
func firstRow(stdout string, n int) ([]string, bool) {
	for line := range strings.SplitSeq(strings.TrimSpace(stdout), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) >= n {
			return fields, true
		}
	}
	return nil, false
}

func parsePlaylist(stdout string) []Track {
	var tracks []Track
	for line := range strings.SplitSeq(strings.TrimSpace(stdout), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 4 || fields[3] == "" || fields[3] == "NA" {
			continue
		}
		title := fields[1]
		if title == "" || title == "NA" {
			title = "Unknown"
		}
		tracks = append(tracks, Track{
			Title:     title,
			URL:       watchURL(fields[3]),
			Duration:  parseSeconds(fields[2]),
			Thumbnail: thumbnailURL(fields[3]),
		})
	}
	return tracks
}

// parseSeconds reads yt-dlp's duration field ("212", "212.0" or "NA").
func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second)).Round(time.Second)
}

// parseDurationColon parses "3:20" or "1:05:20".
func parseDurationColon(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// IsYouTubeURL reports whether s links to YouTube or YouTube Music.
func IsYouTubeURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// IsYouTubePlaylist reports whether a YouTube link names a playlist rather than a video.
func IsYouTubePlaylist(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	q := u.Query()
	if q.Get("list") == "" {
		return false
	}
	if u.Path == "/playlist" {
		return true
	}
	return !strings.EqualFold(u.Hostname(), "youtu.be") && q.Get("v") == ""
}
