package rate

import (
	"context"
	"sync"
	"time"
)

// Config defines the login throttle for one key (usually the auth mount).
// A PerSecond of zero or less disables throttling.
type Config struct {
	PerSecond float64
	Burst     int
}

// Limiter implements a token bucket.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rate   float64
	burst  float64
	now    func() time.Time
}

// New creates a limiter with a full bucket.
func New(cfg Config) *Limiter {
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg Config, now func() time.Time) *Limiter {
	burst := float64(cfg.Burst)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		tokens: burst,
		last:   now(),
		rate:   cfg.PerSecond,
		burst:  burst,
		now:    now,
	}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	_, ok := l.take()
	return ok
}

// take refills the bucket and either consumes a token or reports how long
// until the next one.
func (l *Limiter) take() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rate <= 0 {
		return 0, true
	}
	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}
	return time.Duration((1 - l.tokens) / l.rate * float64(time.Second)), false
}

// Wait blocks until a token becomes available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.take()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Manager holds one limiter per key.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

func (m *Manager) GetLimiter(key string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[key] = lim
	return lim
}

// Wait throttles the caller for key.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}
