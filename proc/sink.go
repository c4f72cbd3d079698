package proc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/voice"

	"github.com/leeineian/jukebox/sys"
)

var errSinkClosed = errors.New("sink closed")

// frameSource produces Opus frames for one track.
type frameSource interface {
	Transcode(ctx context.Context, onFrame func([]byte)) error
	Close()
}

// audioOutput is the part of voice.Conn a sink writes to.
type audioOutput interface {
	SetOpusFrameProvider(handler voice.OpusFrameProvider)
	SetSpeaking(ctx context.Context, flags voice.SpeakingFlags) error
}

// StreamProvider feeds queued Opus frames to the voice connection. While
// paused or starved it returns silence instead of blocking the send loop.
type StreamProvider struct {
	frames   chan []byte
	ctx      context.Context
	paused   atomic.Bool
	finished chan struct{}
	once     sync.Once
}

func NewStreamProvider(ctx context.Context) *StreamProvider {
	return &StreamProvider{
		frames:   make(chan []byte, 100),
		ctx:      ctx,
		finished: make(chan struct{}),
	}
}

// Close marks the stream as fully played out.
func (p *StreamProvider) Close() {
	p.once.Do(func() { close(p.finished) })
}

// Finished is closed once the end-of-stream frame has been consumed.
func (p *StreamProvider) Finished() <-chan struct{} {
	return p.finished
}

// PushFrame queues a frame; nil marks the end of the stream.
func (p *StreamProvider) PushFrame(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

func (p *StreamProvider) ProvideOpusFrame() ([]byte, error) {
	if p.paused.Load() {
		return nil, nil
	}
	select {
	case f := <-p.frames:
		if f == nil {
			p.Close()
			return nil, io.EOF
		}
		return f, nil
	case <-p.ctx.Done():
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return nil, nil
	}
}

type stream struct {
	provider *StreamProvider
	cancel   context.CancelFunc
}

// DiscordSink plays resolved media into a guild voice connection. Each Attach
// runs one transcoder goroutine which reports Playing once audio flows, then
// Idle when the track has been played out or Error when decoding fails.
type DiscordSink struct {
	label string
	out   audioOutput
	open  func(input string) (frameSource, error)

	mu     sync.Mutex
	cur    *stream
	closed bool
}

func NewDiscordSink(label string, out audioOutput) *DiscordSink {
	return &DiscordSink{
		label: label,
		out:   out,
		open: func(input string) (frameSource, error) {
			return OpenTranscoder(input)
		},
	}
}

func (s *DiscordSink) Attach(ctx context.Context, m Media, emit func(SinkEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	s.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	st := &stream{provider: NewStreamProvider(ctx), cancel: cancel}
	s.cur = st

	s.setProviderSafe(st.provider)
	_ = s.out.SetSpeaking(ctx, voice.SpeakingFlagMicrophone)

	go s.run(ctx, st, m, emit)
	return nil
}

func (s *DiscordSink) run(ctx context.Context, st *stream, m Media, emit func(SinkEvent)) {
	defer st.cancel()
	defer s.release(st)

	src, err := s.open(m.StreamURL)
	if err != nil {
		if ctx.Err() == nil {
			sys.LogVoice(sys.MsgVoiceTranscoderFail, m.Track, err)
			emit(SinkEvent{Kind: SinkFailed, Err: err})
		}
		return
	}
	defer src.Close()

	emit(SinkEvent{Kind: SinkPlaying})
	err = src.Transcode(ctx, st.provider.PushFrame)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		sys.LogVoice(sys.MsgVoiceTranscoderFail, m.Track, err)
		emit(SinkEvent{Kind: SinkFailed, Err: err})
		return
	}

	select {
	case <-st.provider.Finished():
		emit(SinkEvent{Kind: SinkIdle})
	case <-ctx.Done():
	}
}

// release detaches st from the connection unless a newer stream took over.
func (s *DiscordSink) release(st *stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != st {
		return
	}
	s.cur = nil
	s.setProviderSafe(nil)
	_ = s.out.SetSpeaking(context.Background(), 0)
}

// setProviderSafe recovers from panics raised by a connection that is closing.
func (s *DiscordSink) setProviderSafe(p voice.OpusFrameProvider) {
	if s.out == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice("Recovered from panic in SetOpusFrameProvider: %v", r)
		}
	}()
	s.out.SetOpusFrameProvider(p)
}

func (s *DiscordSink) stopLocked() {
	if s.cur != nil {
		s.cur.cancel()
	}
}

// Stop cancels the current stream without waiting for it to wind down.
func (s *DiscordSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *DiscordSink) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return false
	}
	return s.cur.provider.paused.CompareAndSwap(false, true)
}

func (s *DiscordSink) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return false
	}
	return s.cur.provider.paused.CompareAndSwap(true, false)
}

// Paused reports whether the current stream is held.
func (s *DiscordSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && s.cur.provider.paused.Load()
}

func (s *DiscordSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}
