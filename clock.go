package gobounce

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the time source of a controller.
// It reads the current time and schedules the deferred invocations.
//
// The default implementation is backed by the wall clock;
// it can be overridden with WithClock to allow for easier testing.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled function that can be stopped before it runs.
type Timer interface {
	Stop() bool
}

// FromClock adapts a github.com/benbjohnson/clock clock,
// either clock.New() or a clock.NewMock(), to the Clock interface.
func FromClock(c clock.Clock) Clock {
	return &clockAdapter{clock: c}
}

type clockAdapter struct {
	clock clock.Clock
}

func (a *clockAdapter) Now() time.Time {
	return a.clock.Now()
}

func (a *clockAdapter) AfterFunc(d time.Duration, f func()) Timer {
	return a.clock.AfterFunc(d, f)
}

var defaultClock = FromClock(clock.New())
