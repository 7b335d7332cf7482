package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 30
)

type Config struct {
	Window      time.Duration
	MaxRequests int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	return c
}

type window struct {
	count int
	start time.Time
}

// Limiter is a fixed-window counter keyed by an arbitrary string.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]*window
	now     func() time.Time
	changed chan struct{}
}

type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		windows: make(map[string]*window),
		now:     time.Now,
		changed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether key may proceed and consumes one slot if so.
// A denied call does not count against the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.windows[key] = &window{count: 1, start: now}
		return true
	}
	if w.count >= l.cfg.MaxRequests {
		return false
	}
	w.count++
	return true
}

func (l *Limiter) Reset() {
	l.mu.Lock()
	l.windows = make(map[string]*window)
	l.mu.Unlock()
}

// Configure swaps the window settings and drops all state.
func (l *Limiter) Configure(cfg Config) {
	l.mu.Lock()
	l.cfg = cfg.withDefaults()
	l.windows = make(map[string]*window)
	l.mu.Unlock()

	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *Limiter) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep evicts keys whose window has expired and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Run sweeps once per window until ctx is done. A Configure call restarts
// the ticker with the new window.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.Config().Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.changed:
			ticker.Reset(l.Config().Window)
		case <-ticker.C:
			l.Sweep()
			ticker.Reset(l.Config().Window)
		}
	}
}
