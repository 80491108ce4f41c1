package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage  = "send_message"
	ActionCreateThread = "create_thread"
	ActionHTTPRequest  = "http_request"
)

// Limit allows Events actions per Per, with bursts up to Events. Zero Events means unlimited.
type Limit struct {
	Events int
	Per    time.Duration
}

func PerMinute(n int) Limit { return Limit{Events: n, Per: time.Minute} }
func PerHour(n int) Limit   { return Limit{Events: n, Per: time.Hour} }

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for different keys and actions
type RateLimiter struct {
	limits       map[string]Limit
	defaultLimit Limit
	buckets      map[string]*bucket
	mutex        sync.Mutex
	now          func() time.Time
}

// NewRateLimiter creates a limiter with one Limit per action. Unknown actions use 20 per minute.
func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	copied := make(map[string]Limit, len(limits))
	for action, limit := range limits {
		copied[action] = limit
	}

	return &RateLimiter{
		limits:       copied,
		defaultLimit: PerMinute(20),
		buckets:      make(map[string]*bucket),
		now:          time.Now,
	}
}

// Allow consumes one token for key and action. When denied it returns how long to wait.
func (rl *RateLimiter) Allow(key, action string) (bool, time.Duration) {
	limit := rl.limitFor(action)
	if limit.Events <= 0 || limit.Per <= 0 {
		return true, 0
	}

	now := rl.now()
	b := rl.bucketFor(key+":"+action, limit, now)

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, limit.Per
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) limitFor(action string) Limit {
	if limit, ok := rl.limits[action]; ok {
		return limit
	}
	return rl.defaultLimit
}

func (rl *RateLimiter) bucketFor(key string, limit Limit, now time.Time) *bucket {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	b, exists := rl.buckets[key]
	if !exists {
		every := limit.Per / time.Duration(limit.Events)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), limit.Events)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// Cleanup removes buckets idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.buckets)
}

// StartCleanupRoutine prunes idle buckets every interval until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
