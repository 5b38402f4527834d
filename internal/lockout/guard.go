// Package lockout keeps per-actor failed sign-in bookkeeping. It is a client-side
// throttle evaluated before any network call and layered in front of, not in
// place of, server-side rate limiting.
package lockout

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/cases"
)

const (
	// DefaultThreshold is the number of consecutive failures that locks an identifier.
	DefaultThreshold = 5
	// DefaultWindow is how long a lock lasts.
	DefaultWindow = 15 * time.Minute
)

// Config configures a Guard.
type Config struct {
	Threshold int
	Window    time.Duration
}

// DefaultConfig returns the standard five-failures / fifteen-minutes policy.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, Window: DefaultWindow}
}

// Status is the lock state of one identifier.
type Status struct {
	IsLocked  bool
	Remaining time.Duration
}

type record struct {
	failedAttemptCount int
	lockedUntil        time.Time
}

// Guard tracks failures per identifier. Records live only for the process lifetime.
type Guard struct {
	mutex     sync.Mutex
	records   map[string]*record
	threshold int
	window    time.Duration
	clock     clockwork.Clock
	folder    cases.Caser
}

// NewGuard constructs a Guard. Non-positive config values fall back to defaults;
// a nil clock uses the wall clock.
func NewGuard(configuration Config, clock clockwork.Clock) *Guard {
	if configuration.Threshold <= 0 {
		configuration.Threshold = DefaultThreshold
	}
	if configuration.Window <= 0 {
		configuration.Window = DefaultWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Guard{
		records:   make(map[string]*record),
		threshold: configuration.Threshold,
		window:    configuration.Window,
		clock:     clock,
		folder:    cases.Fold(),
	}
}

// Status reports whether identifier is locked and for how long.
func (guard *Guard) Status(identifier string) Status {
	guard.mutex.Lock()
	defer guard.mutex.Unlock()
	key := guard.key(identifier)

	rec, ok := guard.records[key]
	if !ok || rec.lockedUntil.IsZero() {
		return Status{}
	}
	remaining := rec.lockedUntil.Sub(guard.clock.Now())
	if remaining <= 0 {
		return Status{}
	}
	return Status{IsLocked: true, Remaining: remaining}
}

// RecordFailure counts one failed attempt. Reaching the threshold locks the
// identifier for the configured window; failures while locked are ignored so
// continued hammering cannot extend the lock. A failure after an elapsed lock
// starts a fresh count.
func (guard *Guard) RecordFailure(identifier string) {
	now := guard.clock.Now()
	guard.mutex.Lock()
	defer guard.mutex.Unlock()
	key := guard.key(identifier)

	rec, ok := guard.records[key]
	if !ok {
		rec = &record{}
		guard.records[key] = rec
	}
	if !rec.lockedUntil.IsZero() {
		if now.Before(rec.lockedUntil) {
			return
		}
		*rec = record{}
	}
	rec.failedAttemptCount++
	if rec.failedAttemptCount >= guard.threshold {
		rec.lockedUntil = now.Add(guard.window)
	}
}

// Reset forgets identifier entirely.
func (guard *Guard) Reset(identifier string) {
	guard.mutex.Lock()
	defer guard.mutex.Unlock()
	key := guard.key(identifier)
	delete(guard.records, key)
}

// FailureCount returns the current failure count for identifier.
func (guard *Guard) FailureCount(identifier string) int {
	guard.mutex.Lock()
	defer guard.mutex.Unlock()
	key := guard.key(identifier)
	if rec, ok := guard.records[key]; ok {
		return rec.failedAttemptCount
	}
	return 0
}

// key folds identifier. Callers hold the mutex because a Caser is not safe for
// concurrent use.
func (guard *Guard) key(identifier string) string {
	return guard.folder.String(strings.TrimSpace(identifier))
}
