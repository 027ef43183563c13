/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"
)

// Lifecycle keeps at most one pending wake-up per room. Scheduling again
// replaces the previous wake-up rather than adding another.
type Lifecycle struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(code string)
}

func newLifecycle(fire func(code string)) *Lifecycle {
	return &Lifecycle{
		timers: make(map[string]*time.Timer),
		fire:   fire,
	}
}

func (l *Lifecycle) schedule(code string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.scheduleLocked(code, at)
}

// ensure schedules a wake-up at at unless one is already pending.
func (l *Lifecycle) ensure(code string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.timers[code]; !ok {
		l.scheduleLocked(code, at)
	}
}

func (l *Lifecycle) scheduleLocked(code string, at time.Time) {
	if t, ok := l.timers[code]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(time.Until(at), func() {
		l.mu.Lock()
		if l.timers[code] == t {
			delete(l.timers, code)
		}
		l.mu.Unlock()

		l.fire(code)
	})
	l.timers[code] = t
}

func (l *Lifecycle) cancel(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.timers[code]; ok {
		t.Stop()
		delete(l.timers, code)
	}
}

func (l *Lifecycle) pending(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.timers[code]
	return ok
}

func (l *Lifecycle) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for code, t := range l.timers {
		t.Stop()
		delete(l.timers, code)
	}
}
