package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// One send every two seconds with a small burst, per user.
	sendRateInterval = 2 * time.Second
	sendRateBurst    = 5

	visitorTTL = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a keyed token-bucket limiter for send operations.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{visitors: make(map[string]*visitor)}
}

// Allow reports whether the key may perform another send now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(sendRateInterval), sendRateBurst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()

	rl.evictStale()
	return v.limiter.Allow()
}

// evictStale drops idle visitors. Called with the lock held.
func (rl *RateLimiter) evictStale() {
	if len(rl.visitors) < 1024 {
		return
	}
	cutoff := time.Now().Add(-visitorTTL)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}
