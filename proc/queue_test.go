package proc

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func track(name string) Track {
	return Track{Title: name, URL: "https://www.youtube.com/watch?v=" + name, RequestedBy: "tester"}
}

func TestQueueStore_FIFO(t *testing.T) {
	s := NewQueueStore()
	s.Ensure("g")

	var want []Track
	for i := range 5 {
		tr := track(fmt.Sprintf("t%d", i))
		want = append(want, tr)
		if i%2 == 0 {
			s.EnqueueOne("g", tr)
		} else {
			s.EnqueueMany("g", []Track{tr})
		}
	}
	// Duplicates are kept.
	s.EnqueueMany("g", []Track{want[0], want[0]})
	want = append(want, want[0], want[0])

	var got []Track
	for {
		tr, ok := s.TakeNext("g")
		if !ok {
			break
		}
		cur, ok := s.PeekCurrent("g")
		require.True(t, ok)
		assert.Equal(t, tr, cur)
		got = append(got, tr)
	}
	assert.Equal(t, want, got)
	assert.True(t, s.IsEmpty("g"))
}

func TestQueueStore_EnsureIsIdempotent(t *testing.T) {
	s := NewQueueStore()
	s.Ensure("g")
	s.EnqueueOne("g", track("a"))
	s.Ensure("g")

	assert.Equal(t, 1, s.Size("g"))
	snap, ok := s.Snapshot("g")
	require.True(t, ok)
	assert.Equal(t, DefaultVolume, snap.Volume)
	assert.Equal(t, StatusIdle, snap.Status)
}

func TestQueueStore_ClearCurrentKeepsPending(t *testing.T) {
	s := NewQueueStore()
	s.EnqueueMany("g", []Track{track("a"), track("b"), track("c")})
	_, _ = s.TakeNext("g")
	s.SetPlaying("g", true)
	s.SetPaused("g", true)
	assert.Equal(t, StatusPaused, s.Status("g"))

	s.ClearCurrent("g")
	_, ok := s.PeekCurrent("g")
	assert.False(t, ok)
	assert.Equal(t, StatusIdle, s.Status("g"))
	assert.Equal(t, 2, s.Size("g"))

	s.Clear("g")
	assert.Equal(t, 0, s.Size("g"))
}

func TestQueueStore_SnapshotIsACopy(t *testing.T) {
	s := NewQueueStore()
	s.EnqueueMany("g", []Track{track("a"), track("b")})
	_, _ = s.TakeNext("g")

	snap, ok := s.Snapshot("g")
	require.True(t, ok)
	snap.Pending[0].Title = "mutated"
	snap.Current.Title = "mutated"

	again, _ := s.Snapshot("g")
	assert.Equal(t, "b", again.Pending[0].Title)
	assert.Equal(t, "a", again.Current.Title)
}

func TestQueueStore_UnknownSession(t *testing.T) {
	s := NewQueueStore()
	_, ok := s.TakeNext("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Size("missing"))
	assert.Equal(t, StatusIdle, s.Status("missing"))
	_, ok = s.Snapshot("missing")
	assert.False(t, ok)

	s.SetPlaying("missing", true)
	s.Clear("missing")
	assert.False(t, s.Exists("missing"))
}

func TestQueueStore_SessionsAreIndependent(t *testing.T) {
	s := NewQueueStore()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			id := fmt.Sprintf("g%d", g)
			for i := range 50 {
				s.EnqueueOne(id, track(fmt.Sprint(i)))
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 8, s.Len())
	for g := range 8 {
		assert.Equal(t, 50, s.Size(fmt.Sprintf("g%d", g)))
	}

	s.Delete("g0")
	assert.False(t, s.Exists("g0"))
}
