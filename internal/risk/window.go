package risk

import "time"

// window remembers when a key was last stamped and reports whether it is
// still inside a fixed time-to-live. It is not synchronized; the Ledger
// lock guards it.
type window struct {
	seen map[string]time.Time
	ttl  time.Duration
}

func newWindow(ttl time.Duration) *window {
	return &window{seen: make(map[string]time.Time), ttl: ttl}
}

// active returns how long ago key was stamped and whether that is still
// within the ttl.
func (w *window) active(key string, now time.Time) (time.Duration, bool) {
	last, ok := w.seen[key]
	if !ok {
		return 0, false
	}
	elapsed := now.Sub(last)
	return elapsed, elapsed < w.ttl
}

func (w *window) stamp(key string, at time.Time) {
	w.seen[key] = at
}

// prune drops entries that can no longer block anything.
func (w *window) prune(now time.Time) {
	for key, ts := range w.seen {
		if now.Sub(ts) >= w.ttl {
			delete(w.seen, key)
		}
	}
}

func (w *window) export() map[string]time.Time {
	out := make(map[string]time.Time, len(w.seen))
	for k, v := range w.seen {
		out[k] = v
	}
	return out
}

func (w *window) replace(entries map[string]time.Time) {
	w.seen = make(map[string]time.Time, len(entries))
	for k, v := range entries {
		w.seen[k] = v
	}
}
