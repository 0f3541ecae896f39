package audit

import (
	"sync"
	"time"
)

// window counts each actor's recent events. Only timestamps inside the
// burst window are retained, so lookups cost O(events in window).
type window struct {
	mu     sync.Mutex
	span   time.Duration
	recent map[string][]time.Time
}

func newWindow(span time.Duration) *window {
	return &window{span: span, recent: map[string][]time.Time{}}
}

// observe returns how many events actor has in [at-span, at) and then
// records at.
func (w *window) observe(actor string, at time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := at.Add(-w.span)
	times := w.recent[actor]
	keep := times[:0]
	for _, t := range times {
		if !t.Before(cutoff) {
			keep = append(keep, t)
		}
	}
	prior := 0
	for _, t := range keep {
		if t.Before(at) || t.Equal(at) {
			prior++
		}
	}
	w.recent[actor] = append(keep, at)
	return prior
}

// prune drops actors with no event newer than now-span.
func (w *window) prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.span)
	for actor, times := range w.recent {
		if len(times) == 0 || times[len(times)-1].Before(cutoff) {
			delete(w.recent, actor)
		}
	}
}

// actorLocks hands out one mutex per actor so that events of the same
// actor are scored and persisted in order. An entry lives only while some
// caller holds or waits for it.
type actorLocks struct {
	mu    sync.Mutex
	locks map[string]*actorLock
}

type actorLock struct {
	sync.Mutex
	refs int
}

func (l *actorLocks) lock(actor string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*actorLock{}
	}
	m, ok := l.locks[actor]
	if !ok {
		m = &actorLock{}
		l.locks[actor] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, actor)
		}
		l.mu.Unlock()
	}
}

func (l *actorLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
