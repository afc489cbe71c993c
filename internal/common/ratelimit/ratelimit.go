// Package ratelimit provides the rate limiters used by the connector invoker:
// a token-bucket limiter built on golang.org/x/time/rate and a fixed-window
// counter for per-connection request budgets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
)

// Config holds rate limiter configuration
type Config struct {
	Enabled           bool
	RequestsPerSecond int
	BurstSize         int
	MaxKeys           int
	CleanupPeriod     time.Duration
}

// DefaultConfig returns a permissive default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerSecond: 100,
		BurstSize:         10,
		MaxKeys:           10000,
		CleanupPeriod:     10 * time.Minute,
	}
}

// Validate checks the configuration for internal consistency
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond <= 0 {
		return errors.ConfigError("requests per second must be positive")
	}
	if c.BurstSize <= 0 {
		return errors.ConfigError("burst size must be positive")
	}
	return nil
}

// Limiter is the interface consumed by components that rate-limit work
type Limiter interface {
	Wait(ctx context.Context) error
	TryAcquire() bool
	TryAcquireForKey(key string) bool
}

// TokenBucket implements Limiter with a global token bucket plus lazily
// created per-key buckets
type TokenBucket struct {
	mu          sync.Mutex
	config      Config
	global      *rate.Limiter
	perKey      map[string]*bucketEntry
	lastCleanup time.Time
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewTokenBucket creates a token-bucket limiter from config
func NewTokenBucket(config Config) (*TokenBucket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TokenBucket{
		config:      config,
		global:      rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		perKey:      make(map[string]*bucketEntry),
		lastCleanup: time.Now(),
	}, nil
}

// Wait blocks until a request may proceed under the global limit
func (t *TokenBucket) Wait(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}
	return t.global.Wait(ctx)
}

// TryAcquire attempts to take a token from the global bucket without blocking
func (t *TokenBucket) TryAcquire() bool {
	if !t.config.Enabled {
		return true
	}
	return t.global.Allow()
}

// TryAcquireForKey attempts to take a token from the named key's bucket
func (t *TokenBucket) TryAcquireForKey(key string) bool {
	if !t.config.Enabled {
		return true
	}
	return t.limiterFor(key).Allow()
}

func (t *TokenBucket) limiterFor(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastCleanup) > t.config.CleanupPeriod {
		t.cleanup()
	}

	entry, exists := t.perKey[key]
	if !exists {
		entry = &bucketEntry{
			limiter: rate.NewLimiter(rate.Limit(t.config.RequestsPerSecond), t.config.BurstSize),
		}
		t.perKey[key] = entry
		if len(t.perKey) > t.config.MaxKeys {
			t.cleanup()
		}
	}
	entry.lastUsed = time.Now()

	return entry.limiter
}

func (t *TokenBucket) cleanup() {
	cutoff := time.Now().Add(-t.config.CleanupPeriod)
	for key, entry := range t.perKey {
		if entry.lastUsed.Before(cutoff) {
			delete(t.perKey, key)
		}
	}
	t.lastCleanup = time.Now()
}

// FixedWindow counts requests per key inside a fixed time window. The counter
// resets when the window rolls over, so bursts at window edges can briefly
// exceed the nominal rate.
type FixedWindow struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string]*windowEntry
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

// NewFixedWindow creates a fixed-window limiter allowing limit requests per
// window for each key
func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:    limit,
		window:   window,
		counters: make(map[string]*windowEntry),
	}
}

// Allow reports whether another request for key fits in the current window,
// consuming a slot when it does
func (f *FixedWindow) Allow(key string) bool {
	if f.limit <= 0 {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	entry, exists := f.counters[key]
	if !exists || now.Sub(entry.windowStart) >= f.window {
		f.counters[key] = &windowEntry{count: 1, windowStart: now}
		return true
	}

	if entry.count >= f.limit {
		return false
	}
	entry.count++
	return true
}

// Remaining returns how many requests are left for key in the current window
func (f *FixedWindow) Remaining(key string) int {
	if f.limit <= 0 {
		return int(^uint(0) >> 1)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, exists := f.counters[key]
	if !exists || time.Since(entry.windowStart) >= f.window {
		return f.limit
	}
	return f.limit - entry.count
}

// Reset clears the window for key
func (f *FixedWindow) Reset(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counters, key)
}
