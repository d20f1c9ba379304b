package service

import (
	"context"
	"sync"
	"time"

	"event-dispatcher/internal/core/ports"
)

// WindowLimiter is the in-process ports.WindowStore. Windows live in an
// arena keyed by caller key, each with its own lock.
type WindowLimiter struct {
	mu      sync.RWMutex
	windows map[string]*window
}

type window struct {
	mu    sync.Mutex
	start time.Time
	size  time.Duration
	count int64
	dead  bool // removed from the arena; hits must look the key up again
}

func NewWindowLimiter() *WindowLimiter {
	return &WindowLimiter{windows: make(map[string]*window)}
}

// Hit counts one request against key. A rejected hit leaves the count as is.
func (l *WindowLimiter) Hit(_ context.Context, key string, max int64, size time.Duration, now time.Time) (*ports.WindowDecision, error) {
	w := l.window(key, now)
	w.mu.Lock()
	for w.dead {
		w.mu.Unlock()
		w = l.window(key, now)
		w.mu.Lock()
	}
	defer w.mu.Unlock()

	if now.Sub(w.start) >= size {
		w.start = now
		w.count = 0
	}
	w.size = size

	d := &ports.WindowDecision{Limit: max, ResetAt: w.start.Add(size)}
	if w.count < max {
		w.count++
		d.Allowed = true
	}
	d.Remaining = max - w.count
	return d, nil
}

func (l *WindowLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[key]; ok {
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
		delete(l.windows, key)
	}
	return nil
}

// Sweep drops windows that have elapsed. The next hit on such a key would
// open a fresh window anyway, so this only reclaims memory.
func (l *WindowLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, w := range l.windows {
		w.mu.Lock()
		if now.Sub(w.start) >= w.size {
			w.dead = true
			delete(l.windows, key)
			n++
		}
		w.mu.Unlock()
	}
	return n
}

func (l *WindowLimiter) window(key string, now time.Time) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; !ok {
		w = &window{start: now}
		l.windows[key] = w
	}
	return w
}
