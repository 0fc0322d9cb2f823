package ratelimit

import (
	"sync"
	"time"
)

// Pacer enforces the "sleep D after every N requests" floors the remote
// hosts expect. The sleep happens regardless of how fast the server
// answered, so it is a floor on total elapsed time, not a ceiling on rps.
type Pacer struct {
	every int
	pause time.Duration

	mu    sync.Mutex
	count int
	total int
	slept time.Duration
}

// NewPacer builds a pacer sleeping pause after every `every` calls to Tick.
func NewPacer(every int, pause time.Duration) *Pacer {
	if every < 1 {
		every = 1
	}
	return &Pacer{every: every, pause: pause}
}

// Tick records one request and sleeps when the floor is due.
func (p *Pacer) Tick() {
	p.mu.Lock()
	p.count++
	p.total++
	due := p.count >= p.every
	if due {
		p.count = 0
		p.slept += p.pause
	}
	p.mu.Unlock()

	if due {
		time.Sleep(p.pause)
	}
}

// Requests returns the total number of calls observed.
func (p *Pacer) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Slept returns the cumulative floor sleep applied so far.
func (p *Pacer) Slept() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slept
}

// Throttle guarantees a minimum delay between consecutive calls. Used by
// the marketplace collector, which issues few but expensive page fetches.
type Throttle struct {
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewThrottle builds a throttle with the given minimum spacing.
func NewThrottle(minDelay time.Duration) *Throttle {
	return &Throttle{minDelay: minDelay}
}

// Wait blocks until at least minDelay has passed since the previous call.
func (t *Throttle) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()

	since := time.Since(t.lastCall)
	if since < t.minDelay {
		time.Sleep(t.minDelay - since)
	}
	t.lastCall = time.Now()
}
