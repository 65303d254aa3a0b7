// Package ratelimit bounds how fast a single signaling connection may send.
package ratelimit

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Limiter is a token bucket that holds up to burst messages and refills at
// perSecond messages per second. A non-positive perSecond disables limiting.
type Limiter struct {
	mu    sync.Mutex
	clock Clock

	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

// NewLimiter returns a full bucket. burst <= 0 defaults to perSecond.
func NewLimiter(clock Clock, perSecond, burst int) *Limiter {
	if clock == nil {
		clock = RealClock{}
	}
	if burst <= 0 {
		burst = perSecond
	}
	return &Limiter{
		clock:    clock,
		rate:     float64(perSecond),
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     clock.Now(),
	}
}

// Allow takes one token if available.
func (l *Limiter) Allow() bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if elapsed := now.Sub(l.last); elapsed > 0 {
		l.tokens += elapsed.Seconds() * l.rate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
	}
	// A clock that went backwards only moves the reference point.
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
