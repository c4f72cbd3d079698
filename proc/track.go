package proc

import (
	"errors"
	"fmt"
	"time"
)

// Track is one queued item. Duplicates are allowed.
type Track struct {
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Duration    time.Duration `json:"duration"`
	RequestedBy string        `json:"requested_by"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
}

func (t Track) String() string {
	if t.Title == "" {
		return t.URL
	}
	return t.Title
}

// Media is what the resolve cache stores: track metadata and, once resolved, a
// direct audio stream URL the sink can open.
type Media struct {
	Track
	StreamURL string
}

// Playable reports whether the media carries a stream the sink can attach.
func (m Media) Playable() bool {
	return m.StreamURL != ""
}

// SpotifyTrack is cross-platform metadata looked up from Spotify.
type SpotifyTrack struct {
	Name     string
	Artist   string
	Album    string
	Duration time.Duration
}

// Query is the YouTube search string used to find a playable copy.
func (s SpotifyTrack) Query() string {
	return s.Artist + " " + s.Name
}

// Status is the playback state of a session.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsActive reports whether a track is loaded (playing or paused).
func (s Status) IsActive() bool {
	return s == StatusPlaying || s == StatusPaused
}

var (
	ErrLockBusy        = errors.New("session is busy")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoSink          = errors.New("session has no audio sink")
	ErrRetryExhausted  = errors.New("retries exhausted")
	ErrSinkFailed      = errors.New("sink failed")
	ErrNotPlayable     = errors.New("resolved media has no stream")
	ErrNoResults       = errors.New("no results found")
	ErrSpotifyDisabled = errors.New("spotify credentials are not configured")
	ErrUnsupportedLink = errors.New("unsupported link")
)

// RetryExhaustedError is returned once every attempt of an operation failed.
type RetryExhaustedError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed: %v", e.Key, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// SinkError wraps a failure reported by or returned from the audio sink.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "sink: " + e.Err.Error() }

func (e *SinkError) Unwrap() error { return e.Err }

func (e *SinkError) Is(target error) bool { return target == ErrSinkFailed }
