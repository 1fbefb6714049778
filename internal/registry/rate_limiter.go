package registry

import (
	"sync"
	"time"
)

// RateLimiter spaces requests evenly so a burst of cache misses stays under
// the NPPES courtesy limit. Slots are handed out in arrival order.
type RateLimiter struct {
	mu   sync.Mutex
	gap  time.Duration
	next time.Time
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{gap: time.Second / time.Duration(requestsPerSecond)}
}

// WaitTurn blocks until the caller's slot arrives.
func (l *RateLimiter) WaitTurn() {
	l.mu.Lock()
	slot := time.Now()
	if l.next.After(slot) {
		slot = l.next
	}
	l.next = slot.Add(l.gap)
	l.mu.Unlock()

	if wait := time.Until(slot); wait > 0 {
		time.Sleep(wait)
	}
}
