// Package dedup implements the short-lived set that keeps the push and pull
// sync paths from double-applying the same event within one scan cycle.
package dedup

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const DefaultTTL = 30 * time.Minute

// Window is a time-bounded set of recently seen event keys. Entries expire
// on their own after the TTL; the engine additionally clears the whole
// window after each successful scan pass.
type Window struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewWindow creates a window with the given entry TTL (DefaultTTL if <= 0)
func NewWindow(ttl time.Duration) *Window {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](ttl),
	)
	go cache.Start() // background expiry loop

	return &Window{cache: cache}
}

// Seen atomically records key as seen and reports whether it was already
// present. This is the test-and-insert both delivery paths race on.
func (w *Window) Seen(key string) bool {
	_, present := w.cache.GetOrSet(key, struct{}{})
	return present
}

// Contains reports whether key is present without inserting it
func (w *Window) Contains(key string) bool {
	return w.cache.Has(key)
}

// Forget removes key so a failed apply can be retried within the same cycle
func (w *Window) Forget(key string) {
	w.cache.Delete(key)
}

// Clear drops all entries. Called after a successful full scan pass.
func (w *Window) Clear() {
	w.cache.DeleteAll()
}

// Len returns the number of live entries
func (w *Window) Len() int {
	return w.cache.Len()
}

// Close stops the background expiry loop
func (w *Window) Close() {
	w.cache.Stop()
}
