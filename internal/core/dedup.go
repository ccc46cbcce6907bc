package core

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupWindow is how long an id or fingerprint counts as a duplicate.
const DefaultDedupWindow = 5 * time.Second

const defaultWindowSize = 4096

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type windowEntry struct {
	actionID string
	seen     time.Time
}

// Window remembers recently recorded ids and fingerprints for a fixed
// duration. Expired entries are pruned lazily; the LRU bound caps memory when
// recording bursts.
type Window struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries *lru.Cache[string, windowEntry]
}

// NewWindow creates a Window. A zero ttl uses DefaultDedupWindow, a nil clock
// uses time.Now and size <= 0 uses a default capacity.
func NewWindow(ttl time.Duration, size int, now Clock) *Window {
	if ttl <= 0 {
		ttl = DefaultDedupWindow
	}
	if now == nil {
		now = time.Now
	}
	if size <= 0 {
		size = defaultWindowSize
	}
	// lru.New only fails for a non-positive size
	entries, _ := lru.New[string, windowEntry](size)
	return &Window{ttl: ttl, now: now, entries: entries}
}

// Lookup returns the action id recorded under key if it is still inside the window.
func (w *Window) Lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries.Get(key)
	if !ok {
		return "", false
	}
	if w.now().Sub(e.seen) >= w.ttl {
		w.entries.Remove(key)
		return "", false
	}
	return e.actionID, true
}

// Add records keys as seen now, all mapping to actionID.
func (w *Window) Add(actionID string, keys ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	for _, k := range keys {
		if k != "" {
			w.entries.Add(k, windowEntry{actionID: actionID, seen: now})
		}
	}
}

// Remove forgets keys.
func (w *Window) Remove(keys ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range keys {
		w.entries.Remove(k)
	}
}

// Prune drops every expired entry and returns how many were removed.
func (w *Window) Prune() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	removed := 0
	for _, k := range w.entries.Keys() {
		if e, ok := w.entries.Peek(k); ok && now.Sub(e.seen) >= w.ttl {
			w.entries.Remove(k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries.Len()
}
