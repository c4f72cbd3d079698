package proc

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/leeineian/jukebox/sys"
)

// RegistryConfig wires the shared collaborators of every session.
type RegistryConfig struct {
	Resolver Resolver
	Caches   *CacheManager
	Retrier  *Retrier
	// Policy is copied for every resolution. Zero means DefaultRetryPolicy.
	Policy RetryPolicy
	// Context bounds background auto-advance. Defaults to context.Background.
	Context context.Context
}

// Registry owns every session: its queue, lock and player.
type Registry struct {
	queues   *QueueStore
	locks    *LockRegistry
	caches   *CacheManager
	retrier  *Retrier
	resolver Resolver
	policy   RetryPolicy
	ctx      context.Context
	events   broker

	mu      sync.Mutex
	players map[string]*Player
}

// Snapshot is a copy of one session's state.
type Snapshot struct {
	ID string `json:"id"`
	QueueSnapshot
	Locked bool `json:"locked"`
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Caches == nil {
		cfg.Caches = NewCacheManager(DefaultCacheTTL, DefaultCacheMaxSize, DefaultSweepInterval)
	}
	if cfg.Retrier == nil {
		cfg.Retrier = NewRetrier()
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	return &Registry{
		queues:   NewQueueStore(),
		locks:    NewLockRegistry(),
		caches:   cfg.Caches,
		retrier:  cfg.Retrier,
		resolver: cfg.Resolver,
		policy:   cfg.Policy,
		ctx:      cfg.Context,
		players:  make(map[string]*Player),
	}
}

func (r *Registry) Caches() *CacheManager { return r.caches }

func (r *Registry) Retrier() *Retrier { return r.retrier }

// EnsureSession returns the session's player, creating the session on first reference.
func (r *Registry) EnsureSession(id string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureSessionLocked(id)
}

func (r *Registry) ensureSessionLocked(id string) *Player {
	if p, ok := r.players[id]; ok {
		return p
	}
	r.queues.Ensure(id)
	p := &Player{
		id:       id,
		queue:    r.queues,
		caches:   r.caches,
		retrier:  r.retrier,
		resolver: r.resolver,
		policy:   r.policy,
		baseCtx:  r.ctx,
		publish:  r.events.publish,
	}
	r.players[id] = p
	return p
}

func (r *Registry) Session(id string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	return p, ok
}

// Sessions lists the ids of every live session in sorted order.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	ids := lo.Keys(r.players)
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Enqueue appends tracks to the session queue in order and returns the pending length.
func (r *Registry) Enqueue(id string, tracks ...Track) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureSessionLocked(id)
	if len(tracks) == 1 {
		return r.queues.EnqueueOne(id, tracks[0])
	}
	return r.queues.EnqueueMany(id, tracks)
}

// AdvanceIfIdle starts the next track if the session is idle. It blocks while
// the track is resolved; run it in a goroutine to avoid waiting.
func (r *Registry) AdvanceIfIdle(ctx context.Context, id string) (AdvanceResult, error) {
	p, ok := r.Session(id)
	if !ok {
		return AdvanceResult{}, ErrSessionNotFound
	}
	return p.Advance(ctx)
}

func (r *Registry) Pause(id string) bool {
	p, ok := r.Session(id)
	return ok && p.Pause()
}

func (r *Registry) Resume(id string) bool {
	p, ok := r.Session(id)
	return ok && p.Resume()
}

func (r *Registry) Stop(id string) error {
	p, ok := r.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	p.Stop()
	return nil
}

func (r *Registry) Skip(id string) (Track, bool) {
	p, ok := r.Session(id)
	if !ok {
		return Track{}, false
	}
	return p.Skip()
}

func (r *Registry) Clear(id string) error {
	p, ok := r.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	p.Clear()
	return nil
}

// Leave destroys the session: playback is stopped, the sink closed and the
// queue and lock bookkeeping removed.
func (r *Registry) Leave(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return ErrSessionNotFound
	}

	// Teardown completes before the id can be reused.
	delete(r.players, id)
	p.Close()
	r.queues.Delete(id)
	r.locks.Forget(id)
	r.events.publish(Event{Kind: EventSessionClosed, SessionID: id})
	return nil
}

func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	q, ok := r.queues.Snapshot(id)
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{ID: id, QueueSnapshot: q, Locked: r.locks.Held(id)}, true
}

func (r *Registry) TryAcquireLock(id string) bool {
	return r.locks.TryAcquire(id)
}

func (r *Registry) ReleaseLock(id string) {
	r.locks.Release(id)
}

// WithLock runs fn while holding the session lock, releasing it on every exit
// path. It returns ErrLockBusy without running fn when the lock is held.
func (r *Registry) WithLock(id string, fn func() error) error {
	if !r.locks.TryAcquire(id) {
		return ErrLockBusy
	}
	defer r.locks.Release(id)
	return fn()
}

// AttachSink sets the audio sink of the session, creating the session if needed.
func (r *Registry) AttachSink(id string, s Sink) {
	r.EnsureSession(id).AttachSink(s)
}

func (r *Registry) Subscribe() *Subscription {
	return r.events.subscribe()
}

func (r *Registry) Unsubscribe(s *Subscription) {
	r.events.unsubscribe(s)
}

// Shutdown leaves every session and clears both caches.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, id := range r.Sessions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = r.Leave(id)
	}
	r.caches.Close()
	r.retrier.ResetAll()
	r.events.closeAll()
	sys.LogPlayer("Registry shut down")
	return nil
}
