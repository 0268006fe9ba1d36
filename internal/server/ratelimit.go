package server

import (
	"sync"
	"time"
)

const rateLimitWindow = time.Minute

type requestWindow struct {
	windowStart  time.Time
	requestCount int
}

// rateLimiter enforces a fixed-window request limit per client address.
type rateLimiter struct {
	mutex   sync.Mutex
	limit   int
	windows map[string]*requestWindow
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		windows: make(map[string]*requestWindow),
	}
}

// Allow reports whether the client may issue another request in the current
// window and records it when permitted.
func (limiter *rateLimiter) Allow(clientAddress string) bool {
	if limiter.limit <= 0 {
		return true
	}

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	currentTime := time.Now()
	clientWindow, windowExists := limiter.windows[clientAddress]
	if !windowExists || currentTime.Sub(clientWindow.windowStart) >= rateLimitWindow {
		limiter.windows[clientAddress] = &requestWindow{windowStart: currentTime, requestCount: 1}
		return true
	}
	if clientWindow.requestCount >= limiter.limit {
		return false
	}
	clientWindow.requestCount++
	return true
}

// RetryAfter returns the number of seconds until the client's window resets.
func (limiter *rateLimiter) RetryAfter(clientAddress string) int {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	clientWindow, windowExists := limiter.windows[clientAddress]
	if !windowExists {
		return 0
	}
	remaining := rateLimitWindow - time.Since(clientWindow.windowStart)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Cleanup drops windows that have been idle longer than maxAge.
func (limiter *rateLimiter) Cleanup(maxAge time.Duration) {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	expirationCutoff := time.Now().Add(-maxAge)
	for clientAddress, clientWindow := range limiter.windows {
		if clientWindow.windowStart.Before(expirationCutoff) {
			delete(limiter.windows, clientAddress)
		}
	}
}
