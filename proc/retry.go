package proc

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/jukebox/sys"
)

// RetryPolicy describes one operation's backoff curve. Build a fresh one per call.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// OnRetry runs after every failed attempt except the last, before sleeping.
	OnRetry func(attempt int, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     5 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based):
// min(InitialDelay * Multiplier^(attempt-1), MaxDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// RetryStats is the per-key bookkeeping kept for introspection.
type RetryStats struct {
	Count     int       `json:"count"`
	LastRetry time.Time `json:"last_retry"`
}

// Retrier keeps retry bookkeeping per operation key. Safe for concurrent use.
type Retrier struct {
	mu    sync.Mutex
	stats map[string]RetryStats
}

func NewRetrier() *Retrier {
	return &Retrier{stats: make(map[string]RetryStats)}
}

func (r *Retrier) record(key string) {
	r.mu.Lock()
	s := r.stats[key]
	s.Count++
	s.LastRetry = time.Now()
	r.stats[key] = s
	r.mu.Unlock()
}

func (r *Retrier) Stats(key string) (RetryStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[key]
	return s, ok
}

// Reset drops the bookkeeping for one key.
func (r *Retrier) Reset(key string) {
	r.mu.Lock()
	delete(r.stats, key)
	r.mu.Unlock()
}

func (r *Retrier) ResetAll() {
	r.mu.Lock()
	clear(r.stats)
	r.mu.Unlock()
}

// Pending counts keys that currently have retry bookkeeping.
func (r *Retrier) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stats)
}

// IsRateLimited reports whether err looks like an upstream rate limit.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "rate limit", "too many requests", "quota"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Retry runs op until it succeeds or the policy is exhausted.
// Cancelling ctx abandons the loop and returns ctx.Err().
func Retry[T any](ctx context.Context, r *Retrier, key string, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			r.Reset(key)
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err

		if IsRateLimited(err) {
			sys.LogComponentWarn("resolver", sys.MsgPlayerRateLimited, key, attempt, err)
		}

		if attempt == attempts {
			break
		}

		r.record(key)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}

		timer := time.NewTimer(policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &RetryExhaustedError{Key: key, Attempts: attempts, Err: lastErr}
}
