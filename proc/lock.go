package proc

import "sync"

// LockRegistry is a per-session fail-fast lock. There is no wait queue:
// a caller that loses the race is told the session is busy.
type LockRegistry struct {
	held sync.Map // session id -> struct{}
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{}
}

// TryAcquire marks the session held and reports true, or reports false if it already was.
func (l *LockRegistry) TryAcquire(id string) bool {
	_, loaded := l.held.LoadOrStore(id, struct{}{})
	return !loaded
}

// Release clears the flag. Releasing a free or unknown session is a no-op.
func (l *LockRegistry) Release(id string) {
	l.held.Delete(id)
}

func (l *LockRegistry) Held(id string) bool {
	_, ok := l.held.Load(id)
	return ok
}

// Forget drops every trace of the session.
func (l *LockRegistry) Forget(id string) {
	l.held.Delete(id)
}
