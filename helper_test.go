package gobounce

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// virtualClock is a manually driven Clock.
// Timers only fire while the clock is moved forward with TimeTravel,
// in order of expiration, on the calling goroutine.
type virtualClock struct {
	lock   sync.Mutex
	start  time.Time
	now    time.Time
	seq    uint64
	timers []*virtualTimer
}

type virtualTimer struct {
	clock   *virtualClock
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

func newVirtualClock() *virtualClock {
	start := time.UnixMilli(1000000)
	return &virtualClock{start: start, now: start}
}

func (c *virtualClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *virtualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.seq++
	t := &virtualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	t.clock.lock.Lock()
	defer t.clock.lock.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// TimeTravel moves the clock forward by the given milliseconds,
// firing every timer that expires on the way.
func (c *virtualClock) TimeTravel(ms int64) {
	c.advance(time.Duration(ms) * time.Millisecond)
}

func (c *virtualClock) advance(d time.Duration) {
	c.lock.Lock()
	target := c.now.Add(d)
	c.lock.Unlock()

	for {
		c.lock.Lock()
		next := c.nextTimer(target)
		if next == nil {
			c.now = target
			c.lock.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.lock.Unlock()

		next.fn()
	}
}

// nextTimer requires the lock.
func (c *virtualClock) nextTimer(until time.Time) *virtualTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(until) {
		return nil
	}
	return c.timers[0]
}

// Elapsed returns the milliseconds elapsed since the clock was created.
func (c *virtualClock) Elapsed() int64 {
	return c.Now().Sub(c.start).Milliseconds()
}

// recordedCall is an invocation seen by a recorder,
// at the elapsed virtual time in milliseconds.
type recordedCall[T any] struct {
	At  int64
	Arg T
}

func (r recordedCall[T]) String() string {
	return fmt.Sprintf("%v@%d", r.Arg, r.At)
}

// recorder wraps an identity function and records its invocations.
type recorder[T any] struct {
	clock *virtualClock
	lock  sync.Mutex
	calls []recordedCall[T]
	err   error
}

func newRecorder[T any](clock *virtualClock) *recorder[T] {
	return &recorder[T]{clock: clock}
}

func (r *recorder[T]) fn(arg T) (T, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.calls = append(r.calls, recordedCall[T]{At: r.clock.Elapsed(), Arg: arg})
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return arg, nil
}

func (r *recorder[T]) Calls() []recordedCall[T] {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]recordedCall[T](nil), r.calls...)
}

func (r *recorder[T]) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.calls)
}

func (r *recorder[T]) Times() []int64 {
	out := []int64{}
	for _, c := range r.Calls() {
		out = append(out, c.At)
	}
	return out
}

func (r *recorder[T]) Args() []T {
	out := []T{}
	for _, c := range r.Calls() {
		out = append(out, c.Arg)
	}
	return out
}

type testLogger struct {
	lock     sync.Mutex
	Messages []string
}

func (l *testLogger) append(msg string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.Messages = append(l.Messages, msg)
}

func (l *testLogger) Debug(text string) {
	l.append(fmt.Sprintf("[d] %v", text))
}
func (l *testLogger) Info(text string) {
	l.append(fmt.Sprintf("[i] %v", text))
}
func (l *testLogger) Warning(text string) {
	l.append(fmt.Sprintf("[w] %v", text))
}
func (l *testLogger) Error(text string) {
	l.append(fmt.Sprintf("[e] %v", text))
}

func (l *testLogger) Lines() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.Messages...)
}

// testableInstance bundles a controller with its virtual clock,
// its recorder and its logger.
type testableInstance struct {
	Controller *Controller[string, string]
	Clock      *virtualClock
	Recorder   *recorder[string]
	Logger     *testLogger
}

func (ti *testableInstance) TimeTravel(ms int64) {
	ti.Clock.TimeTravel(ms)
}

// callAt moves the clock to the given elapsed time and calls the controller.
func (ti *testableInstance) callAt(t *testing.T, at int64, arg string) string {
	if diff := at - ti.Clock.Elapsed(); diff > 0 {
		ti.Clock.TimeTravel(diff)
	}
	res, err := ti.Controller.Call(arg)
	require.NoError(t, err)
	return res
}

func buildInstance(t *testing.T, throttle bool, wait time.Duration, opts ...Option) *testableInstance {
	ti := &testableInstance{
		Clock:  newVirtualClock(),
		Logger: &testLogger{},
	}
	ti.Recorder = newRecorder[string](ti.Clock)

	all := append([]Option{WithClock(ti.Clock), WithLogger(ti.Logger)}, opts...)

	var err error
	if throttle {
		ti.Controller, err = Throttle(ti.Recorder.fn, wait, all...)
	} else {
		ti.Controller, err = Debounce(ti.Recorder.fn, wait, all...)
	}
	require.NoError(t, err)
	require.NotNil(t, ti.Controller)

	return ti
}

func buildDebounceInstance(t *testing.T, wait time.Duration, opts ...Option) *testableInstance {
	return buildInstance(t, false, wait, opts...)
}

func buildThrottleInstance(t *testing.T, wait time.Duration, opts ...Option) *testableInstance {
	return buildInstance(t, true, wait, opts...)
}

const ms = time.Millisecond
