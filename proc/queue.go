package proc

import (
	"slices"
	"sync"
)

const DefaultVolume = 1.0

type sessionQueue struct {
	pending []Track
	current *Track
	playing bool
	paused  bool
	volume  float64
}

func (q *sessionQueue) status() Status {
	switch {
	case q.paused:
		return StatusPaused
	case q.playing:
		return StatusPlaying
	default:
		return StatusIdle
	}
}

// QueueSnapshot is a copy of one session's queue state.
type QueueSnapshot struct {
	Current *Track  `json:"current"`
	Pending []Track `json:"pending"`
	Status  Status  `json:"status"`
	Volume  float64 `json:"volume"`
}

// QueueStore holds the strict FIFO queue of every session.
// Compound changes are gated by the session lock; the internal mutex only
// keeps the map safe for concurrent sessions.
type QueueStore struct {
	mu     sync.Mutex
	queues map[string]*sessionQueue
}

func NewQueueStore() *QueueStore {
	return &QueueStore{queues: make(map[string]*sessionQueue)}
}

func (s *QueueStore) get(id string) *sessionQueue {
	return s.queues[id]
}

func (s *QueueStore) ensureLocked(id string) *sessionQueue {
	q, ok := s.queues[id]
	if !ok {
		q = &sessionQueue{volume: DefaultVolume}
		s.queues[id] = q
	}
	return q
}

// Ensure creates the session queue with default state if it does not exist.
func (s *QueueStore) Ensure(id string) {
	s.mu.Lock()
	s.ensureLocked(id)
	s.mu.Unlock()
}

func (s *QueueStore) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queues[id]
	return ok
}

// EnqueueOne appends a track and returns the new pending length.
func (s *QueueStore) EnqueueOne(id string, t Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.ensureLocked(id)
	q.pending = append(q.pending, t)
	return len(q.pending)
}

// EnqueueMany appends tracks in order and returns the new pending length.
func (s *QueueStore) EnqueueMany(id string, tracks []Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.ensureLocked(id)
	q.pending = append(q.pending, tracks...)
	return len(q.pending)
}

// TakeNext pops the front track into current. It is the only way current advances.
func (s *QueueStore) TakeNext(id string) (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.get(id)
	if q == nil || len(q.pending) == 0 {
		return Track{}, false
	}
	t := q.pending[0]
	q.pending[0] = Track{}
	q.pending = q.pending[1:]
	q.current = &t
	return t, true
}

func (s *QueueStore) PeekCurrent(id string) (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.get(id)
	if q == nil || q.current == nil {
		return Track{}, false
	}
	return *q.current, true
}

// ClearCurrent drops the current track and resets the status flags, keeping pending.
func (s *QueueStore) ClearCurrent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.get(id); q != nil {
		q.current = nil
		q.playing = false
		q.paused = false
	}
}

// Clear empties pending and current and resets the status flags.
func (s *QueueStore) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.get(id); q != nil {
		q.pending = nil
		q.current = nil
		q.playing = false
		q.paused = false
	}
}

func (s *QueueStore) Size(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.get(id); q != nil {
		return len(q.pending)
	}
	return 0
}

func (s *QueueStore) IsEmpty(id string) bool {
	return s.Size(id) == 0
}

func (s *QueueStore) SetPlaying(id string, playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.get(id); q != nil {
		q.playing = playing
	}
}

func (s *QueueStore) SetPaused(id string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.get(id); q != nil {
		q.paused = paused
	}
}

func (s *QueueStore) SetVolume(id string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.get(id); q != nil {
		q.volume = v
	}
}

func (s *QueueStore) Status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.get(id); q != nil {
		return q.status()
	}
	return StatusIdle
}

func (s *QueueStore) Snapshot(id string) (QueueSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.get(id)
	if q == nil {
		return QueueSnapshot{}, false
	}
	snap := QueueSnapshot{
		Pending: slices.Clone(q.pending),
		Status:  q.status(),
		Volume:  q.volume,
	}
	if snap.Pending == nil {
		snap.Pending = []Track{}
	}
	if q.current != nil {
		c := *q.current
		snap.Current = &c
	}
	return snap, true
}

// Delete removes the session queue entirely.
func (s *QueueStore) Delete(id string) {
	s.mu.Lock()
	delete(s.queues, id)
	s.mu.Unlock()
}

func (s *QueueStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
