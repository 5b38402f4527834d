package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler supplies time and one-shot timers to the controller.
type Scheduler interface {
	Now() time.Time
	// AfterFunc runs task once after delay, never synchronously inside the
	// AfterFunc call. The returned function cancels it.
	AfterFunc(delay time.Duration, task func()) (cancel func())
}

// ClockScheduler adapts a clockwork.Clock.
type ClockScheduler struct {
	clock clockwork.Clock
}

// NewClockScheduler wraps clock; nil uses the wall clock.
func NewClockScheduler(clock clockwork.Clock) ClockScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return ClockScheduler{clock: clock}
}

// Now returns the clock's current time.
func (scheduler ClockScheduler) Now() time.Time {
	return scheduler.clock.Now()
}

// AfterFunc schedules task on the clock.
func (scheduler ClockScheduler) AfterFunc(delay time.Duration, task func()) func() {
	timer := scheduler.clock.AfterFunc(delay, task)
	return func() {
		timer.Stop()
	}
}
