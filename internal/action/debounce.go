package action

import (
	"sync"
	"time"
)

// Debouncer drops repeated deliveries of the same action on the same
// target inside a window. Stop always passes.
type Debouncer struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[debounceKey]time.Time
}

type debounceKey struct {
	target string
	action Action
}

// NewDebouncer creates a Debouncer. A zero window disables debouncing.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		now:    time.Now,
		last:   make(map[debounceKey]time.Time),
	}
}

// Allow reports whether a delivery of a on target should be dispatched
// and records it if so.
func (d *Debouncer) Allow(target string, a Action) bool {
	if a == Stop || d.window <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := debounceKey{target: target, action: a}
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[key] = now

	// Opportunistic pruning keeps the map bounded by live keys.
	for k, ts := range d.last {
		if now.Sub(ts) >= d.window {
			delete(d.last, k)
		}
	}
	return true
}
