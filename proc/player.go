package proc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leeineian/jukebox/sys"
)

// SinkEventKind is what an audio sink reports about the attachment it is playing.
type SinkEventKind int

const (
	SinkIdle SinkEventKind = iota
	SinkPlaying
	SinkPaused
	SinkFailed
)

func (k SinkEventKind) String() string {
	switch k {
	case SinkPlaying:
		return "playing"
	case SinkPaused:
		return "paused"
	case SinkFailed:
		return "error"
	default:
		return "idle"
	}
}

// SinkEvent is delivered to Player.HandleSinkEvent. Generation is stamped by the
// emit function handed to Sink.Attach; zero means the current attachment.
type SinkEvent struct {
	Kind       SinkEventKind
	Err        error
	Generation uint64
}

// Sink is the audio destination of one session.
//
// Attach starts playing media and must return before calling emit. Events are
// delivered from the sink's own goroutines. Stop must not wait for them.
type Sink interface {
	Attach(ctx context.Context, m Media, emit func(SinkEvent)) error
	Stop()
	Pause() bool
	Resume() bool
	Close()
}

// DroppedTrack is a track popped from the queue that never reached the sink.
type DroppedTrack struct {
	Track Track
	Err   error
}

// AdvanceResult reports what one advance did. Started is nil when the queue
// ran out, which is not an error.
type AdvanceResult struct {
	Started *Track
	Dropped []DroppedTrack
}

// Player is the playback state machine of one session. Status lives in the
// QueueStore flags; the player owns the sink and the attachment generation.
type Player struct {
	id       string
	queue    *QueueStore
	caches   *CacheManager
	retrier  *Retrier
	resolver Resolver
	policy   RetryPolicy
	baseCtx  context.Context
	publish  func(Event)

	gen atomic.Uint64

	mu     sync.Mutex
	sink   Sink
	cancel context.CancelFunc
	closed bool
	// attached is the generation the sink is playing. It lags gen while a
	// popped track is still resolving.
	attached uint64
}

func (p *Player) ID() string { return p.id }

func (p *Player) Status() Status {
	return p.queue.Status(p.id)
}

// Generation is the number of the current attachment.
func (p *Player) Generation() uint64 {
	return p.gen.Load()
}

// AttachSink sets the audio destination. Replacing a sink stops the old one.
func (p *Player) AttachSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink != nil && p.sink != s {
		p.sink.Stop()
	}
	p.sink = s
}

// Advance starts the next pending track if the session is idle. Tracks whose
// resolution exhausts its retries are dropped and the next one is tried, until
// one attaches or the queue is empty.
func (p *Player) Advance(ctx context.Context) (AdvanceResult, error) {
	return p.advance(ctx, false)
}

func (p *Player) advance(ctx context.Context, auto bool) (AdvanceResult, error) {
	var res AdvanceResult
	var dropGen uint64

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return res, nil
		}
		// A stop or skip after the last drop ends this chain.
		if dropGen != 0 && p.gen.Load() != dropGen {
			p.mu.Unlock()
			return res, nil
		}
		if p.queue.Status(p.id).IsActive() {
			p.mu.Unlock()
			return res, nil
		}

		track, ok := p.queue.TakeNext(p.id)
		if !ok {
			p.queue.ClearCurrent(p.id)
			p.mu.Unlock()
			sys.LogPlayer(sys.MsgPlayerQueueEmpty, p.id)
			if auto || len(res.Dropped) > 0 {
				p.publish(Event{Kind: EventQueueEnded, SessionID: p.id})
			}
			return res, nil
		}

		// Playing from the pop onward, so a concurrent advance sees the session busy.
		gen := p.gen.Add(1)
		p.queue.SetPlaying(p.id, true)
		p.queue.SetPaused(p.id, false)
		if p.cancel != nil {
			p.cancel()
		}
		rctx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		p.mu.Unlock()

		media, err := p.resolve(rctx, track)

		p.mu.Lock()
		if p.closed || p.gen.Load() != gen {
			p.mu.Unlock()
			cancel()
			sys.LogDebug(sys.MsgPlayerStaleDiscard, track, p.id)
			return res, nil
		}
		if err != nil && ctx.Err() != nil {
			p.queue.ClearCurrent(p.id)
			p.cancel = nil
			p.mu.Unlock()
			cancel()
			return res, ctx.Err()
		}
		if err == nil {
			err = p.attachLocked(rctx, media, gen)
		}
		if err != nil {
			p.queue.ClearCurrent(p.id)
			p.cancel = nil
			dropGen = p.gen.Load()
			p.mu.Unlock()
			cancel()

			sys.LogComponentWarn("player", sys.MsgPlayerTrackDropped, track, p.id, err)
			res.Dropped = append(res.Dropped, DroppedTrack{Track: track, Err: err})
			p.publish(Event{Kind: EventTrackDropped, SessionID: p.id, Track: track, Err: err})
			continue
		}
		p.mu.Unlock()

		sys.LogPlayer(sys.MsgPlayerNowPlaying, p.id, track)
		res.Started = &track
		p.publish(Event{Kind: EventTrackStarted, SessionID: p.id, Track: track})
		return res, nil
	}
}

func (p *Player) attachLocked(ctx context.Context, m Media, gen uint64) error {
	if p.sink == nil {
		return &SinkError{Err: ErrNoSink}
	}
	emit := func(ev SinkEvent) {
		ev.Generation = gen
		p.HandleSinkEvent(ev)
	}
	if err := p.sink.Attach(ctx, m, emit); err != nil {
		return &SinkError{Err: err}
	}
	p.attached = gen
	return nil
}

func (p *Player) resolve(ctx context.Context, t Track) (Media, error) {
	cacheKey := "stream:" + t.URL
	if p.caches != nil {
		if m, ok := p.caches.Media.Get(cacheKey); ok && m.Playable() {
			return m, nil
		}
	}

	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		sys.LogPlayer(sys.MsgPlayerRetry, attempt, t, err)
	}
	key := fmt.Sprintf("play-%s-%s", p.id, t.URL)

	m, err := Retry(ctx, p.retrier, key, policy, func(ctx context.Context) (Media, error) {
		m, err := p.resolver.Resolve(ctx, t)
		if err != nil {
			return Media{}, err
		}
		if !m.Playable() {
			return Media{}, ErrNotPlayable
		}
		return m, nil
	})
	if err != nil {
		return Media{}, err
	}
	if m.Title == "" {
		m.Track = t
	}
	if p.caches != nil {
		p.caches.Media.Set(cacheKey, m)
	}
	return m, nil
}

// HandleSinkEvent is the only way sink activity changes the session state.
//
//	Playing  Playing|Paused -> Playing
//	Paused   Playing        -> Paused
//	Idle     Playing|Paused -> Idle, then advance
//	Error    Playing|Paused -> Idle, then advance
//
// Anything else, and any event from an older attachment, is ignored.
func (p *Player) HandleSinkEvent(ev SinkEvent) {
	if ev.Generation != 0 && ev.Generation != p.gen.Load() {
		return
	}

	p.mu.Lock()
	if p.closed || (ev.Generation != 0 && ev.Generation != p.gen.Load()) {
		p.mu.Unlock()
		return
	}
	status := p.queue.Status(p.id)
	current, hasCurrent := p.queue.PeekCurrent(p.id)

	switch ev.Kind {
	case SinkPlaying:
		if status.IsActive() {
			p.queue.SetPlaying(p.id, true)
			p.queue.SetPaused(p.id, false)
		}
		p.mu.Unlock()
		return
	case SinkPaused:
		if status == StatusPlaying && p.attached == p.gen.Load() {
			p.queue.SetPaused(p.id, true)
		}
		p.mu.Unlock()
		return
	}

	if !status.IsActive() {
		p.mu.Unlock()
		return
	}

	// Retire the attachment so a duplicate end event cannot advance twice.
	p.gen.Add(1)
	p.queue.ClearCurrent(p.id)
	p.cancel = nil
	p.mu.Unlock()

	if ev.Kind == SinkFailed {
		err := ev.Err
		if err == nil {
			err = ErrSinkFailed
		} else if !errors.Is(err, ErrSinkFailed) {
			err = &SinkError{Err: err}
		}
		sys.LogComponentWarn("player", sys.MsgPlayerSinkError, p.id, err)
		if hasCurrent {
			p.publish(Event{Kind: EventTrackFailed, SessionID: p.id, Track: current, Err: err})
		}
	}

	p.autoAdvance()
}

func (p *Player) autoAdvance() {
	go func() {
		if _, err := p.advance(p.baseCtx, true); err != nil {
			sys.LogDebug("Auto-advance for %s ended: %v", p.id, err)
		}
	}()
}

// attachedLocked reports whether the sink holds the current track, as opposed
// to a popped track that is still resolving.
func (p *Player) attachedLocked() bool {
	return p.sink != nil && p.attached != 0 && p.attached == p.gen.Load()
}

// Pause is valid only while Playing an attached track and only if the sink agrees.
func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Status(p.id) != StatusPlaying || !p.attachedLocked() {
		return false
	}
	if !p.sink.Pause() {
		return false
	}
	p.queue.SetPaused(p.id, true)
	return true
}

// Resume is valid only while Paused and only if the sink agrees.
func (p *Player) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Status(p.id) != StatusPaused || !p.attachedLocked() {
		return false
	}
	if !p.sink.Resume() {
		return false
	}
	p.queue.SetPaused(p.id, false)
	p.queue.SetPlaying(p.id, true)
	return true
}

// Stop cancels any in-flight resolution, stops the sink and clears the
// current track. Pending tracks stay queued.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	p.gen.Add(1)
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.sink != nil {
		p.sink.Stop()
	}
	p.queue.ClearCurrent(p.id)
}

// Skip stops the current track and advances to the next one in the background.
// It reports the skipped track, if there was one.
func (p *Player) Skip() (Track, bool) {
	p.mu.Lock()
	current, ok := p.queue.PeekCurrent(p.id)
	if !ok {
		p.mu.Unlock()
		return Track{}, false
	}
	p.stopLocked()
	p.mu.Unlock()

	p.autoAdvance()
	return current, true
}

// Clear stops playback and drops every pending track.
func (p *Player) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.queue.Clear(p.id)
}

// Close tears the player down for good. Results of an in-flight resolution
// are discarded on arrival.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.stopLocked()
	p.closed = true
	if p.sink != nil {
		p.sink.Close()
		p.sink = nil
	}
}
