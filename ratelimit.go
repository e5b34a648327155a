/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimits hands out one token bucket per client address.
type rateLimits struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
}

// newRateLimits returns per-address limiters allowing perSecond requests
// with the given burst. A perSecond of zero disables limiting.
func newRateLimits(perSecond float64, burst int) *rateLimits {
	if burst < 1 {
		burst = 1
	}

	return &rateLimits{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *rateLimits) allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastAccess = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// sweep forgets limiters unused since cutoff.
func (l *rateLimits) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0

	for key, e := range l.entries {
		if e.lastAccess.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}

	return removed
}

func (l *rateLimits) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
