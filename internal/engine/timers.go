package engine

import (
	"sync"
	"time"
)

// timerSet owns every one-shot timer the engine schedules (walk settles,
// spawn TTLs). Scheduling under the same key replaces the pending timer.
// After stopAll no callback will fire, so teardown cannot race a write into
// a dead engine.
type timerSet struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

func (ts *timerSet) schedule(key string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.stopped {
		return
	}
	if prev, ok := ts.timers[key]; ok {
		prev.Stop()
	}
	ts.timers[key] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		if ts.stopped {
			ts.mu.Unlock()
			return
		}
		delete(ts.timers, key)
		ts.mu.Unlock()
		fn()
	})
}

func (ts *timerSet) cancel(key string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[key]; ok {
		t.Stop()
		delete(ts.timers, key)
	}
}

func (ts *timerSet) stopAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.stopped = true
	for key, t := range ts.timers {
		t.Stop()
		delete(ts.timers, key)
	}
}

func (ts *timerSet) pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}
