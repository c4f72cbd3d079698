package proc

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"testing/synctest"

	"github.com/disgoorg/disgo/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	mu       sync.Mutex
	provider voice.OpusFrameProvider
	speaking []voice.SpeakingFlags
}

func (o *fakeOutput) SetOpusFrameProvider(p voice.OpusFrameProvider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.provider = p
}

func (o *fakeOutput) SetSpeaking(_ context.Context, flags voice.SpeakingFlags) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speaking = append(o.speaking, flags)
	return nil
}

func (o *fakeOutput) current() voice.OpusFrameProvider {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.provider
}

type fakeSource struct {
	frames [][]byte
	block  bool
	err    error
}

func (f *fakeSource) Transcode(ctx context.Context, onFrame func([]byte)) error {
	defer onFrame(nil)
	for _, fr := range f.frames {
		onFrame(fr)
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeSource) Close() {}

type eventLog struct {
	mu     sync.Mutex
	events []SinkEvent
}

func (l *eventLog) emit(ev SinkEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []SinkEventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SinkEventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestSink(src frameSource, openErr error) (*DiscordSink, *fakeOutput) {
	out := &fakeOutput{}
	s := NewDiscordSink("g", out)
	s.open = func(string) (frameSource, error) {
		if openErr != nil {
			return nil, openErr
		}
		return src, nil
	}
	return s, out
}

var testMedia = Media{Track: Track{Title: "song"}, StreamURL: "https://cdn/song"}

func TestDiscordSink_PlaysOutThenIdle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		src := &fakeSource{frames: [][]byte{{1}, {2}, {3}}}
		s, out := newTestSink(src, nil)
		log := &eventLog{}

		require.NoError(t, s.Attach(t.Context(), testMedia, log.emit))
		synctest.Wait()
		assert.Equal(t, []SinkEventKind{SinkPlaying}, log.kinds())

		p := out.current()
		require.NotNil(t, p)
		var got [][]byte
		for {
			f, err := p.ProvideOpusFrame()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			got = append(got, f)
		}
		assert.Equal(t, [][]byte{{1}, {2}, {3}}, got)

		synctest.Wait()
		assert.Equal(t, []SinkEventKind{SinkPlaying, SinkIdle}, log.kinds())
		assert.Nil(t, out.current())
		assert.Equal(t, []voice.SpeakingFlags{voice.SpeakingFlagMicrophone, 0}, out.speaking)
	})
}

func TestDiscordSink_StopIsSilent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s, out := newTestSink(&fakeSource{block: true}, nil)
		log := &eventLog{}

		require.NoError(t, s.Attach(t.Context(), testMedia, log.emit))
		synctest.Wait()
		s.Stop()
		synctest.Wait()

		assert.Equal(t, []SinkEventKind{SinkPlaying}, log.kinds())
		assert.Nil(t, out.current())
	})
}

func TestDiscordSink_ReportsErrors(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		boom := errors.New("403 forbidden")
		s, _ := newTestSink(nil, boom)
		log := &eventLog{}

		require.NoError(t, s.Attach(t.Context(), testMedia, log.emit))
		synctest.Wait()
		require.Len(t, log.events, 1)
		assert.Equal(t, SinkFailed, log.events[0].Kind)
		assert.ErrorIs(t, log.events[0].Err, boom)
	})

	synctest.Test(t, func(t *testing.T) {
		s, _ := newTestSink(&fakeSource{err: errors.New("corrupt packet")}, nil)
		log := &eventLog{}

		require.NoError(t, s.Attach(t.Context(), testMedia, log.emit))
		synctest.Wait()
		assert.Equal(t, []SinkEventKind{SinkPlaying, SinkFailed}, log.kinds())
	})
}

func TestDiscordSink_PauseResume(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s, out := newTestSink(&fakeSource{frames: [][]byte{{7}}, block: true}, nil)
		assert.False(t, s.Pause(), "nothing attached")

		require.NoError(t, s.Attach(t.Context(), testMedia, func(SinkEvent) {}))
		synctest.Wait()

		require.True(t, s.Pause())
		assert.False(t, s.Pause())
		assert.True(t, s.Paused())

		f, err := out.current().ProvideOpusFrame()
		require.NoError(t, err)
		assert.Nil(t, f, "silence while paused")

		require.True(t, s.Resume())
		assert.False(t, s.Resume())
		f, err = out.current().ProvideOpusFrame()
		require.NoError(t, err)
		assert.Equal(t, []byte{7}, f)

		s.Stop()
		synctest.Wait()
	})
}

func TestDiscordSink_ClosedRejectsAttach(t *testing.T) {
	s, _ := newTestSink(&fakeSource{}, nil)
	s.Close()
	assert.ErrorIs(t, s.Attach(t.Context(), testMedia, func(SinkEvent) {}), errSinkClosed)
}
