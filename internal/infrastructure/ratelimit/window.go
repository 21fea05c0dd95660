package ratelimit

import "time"

// window is one sliding admission window: the timestamps of the last
// admissions, pruned as they age past span.
type window struct {
	span    time.Duration
	cap     int
	entries []time.Time
}

func newWindow(span time.Duration, cap int) *window {
	return &window{span: span, cap: cap}
}

// prune drops entries older than the span.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.entries) && !w.entries[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = append(w.entries[:0], w.entries[i:]...)
	}
}

// admissible reports whether one more admission fits right now.
func (w *window) admissible(now time.Time) bool {
	w.prune(now)
	return len(w.entries) < w.cap
}

// retryIn returns how long until the window frees a slot: the time
// left until the entry binding the cap ages out. Zero when admissible.
func (w *window) retryIn(now time.Time) time.Duration {
	w.prune(now)
	if len(w.entries) < w.cap {
		return 0
	}
	oldest := w.entries[len(w.entries)-w.cap]
	return oldest.Add(w.span).Sub(now)
}

// admit records an admission. Callers check admissible first.
func (w *window) admit(now time.Time) {
	w.entries = append(w.entries, now)
}
