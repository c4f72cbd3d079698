package proc

import (
	"sync"
	"time"
)

const eventBufferSize = 16

// EventKind identifies a session lifecycle event.
type EventKind int

const (
	EventTrackStarted EventKind = iota
	EventTrackDropped
	EventTrackFailed
	EventQueueEnded
	EventSessionClosed
)

func (k EventKind) String() string {
	switch k {
	case EventTrackStarted:
		return "track_started"
	case EventTrackDropped:
		return "track_dropped"
	case EventTrackFailed:
		return "track_failed"
	case EventQueueEnded:
		return "queue_ended"
	case EventSessionClosed:
		return "session_closed"
	default:
		return "unknown"
	}
}

// Event is published by the registry as sessions move through their queue.
// Track is the zero value for EventQueueEnded and EventSessionClosed.
type Event struct {
	Kind      EventKind
	SessionID string
	Track     Track
	Err       error
	At        time.Time
}

// Subscription receives registry events until it is closed.
type Subscription struct {
	Events <-chan Event
	Done   <-chan struct{}

	eventCh chan Event
	doneCh  chan struct{}
	once    sync.Once
}

func newSubscription() *Subscription {
	s := &Subscription{
		eventCh: make(chan Event, eventBufferSize),
		doneCh:  make(chan struct{}),
	}
	s.Events = s.eventCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.doneCh) })
}

// send never blocks; a slow subscriber loses events once its buffer is full.
func (s *Subscription) send(e Event) {
	select {
	case s.eventCh <- e:
	default:
	}
}

type broker struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (b *broker) subscribe() *Subscription {
	s := newSubscription()
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

func (b *broker) unsubscribe(s *Subscription) {
	b.mu.Lock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	s.close()
}

func (b *broker) publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.send(e)
	}
}

func (b *broker) closeAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
