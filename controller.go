package gobounce

import (
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fabiofenoglio/gobounce/internal/optional"
)

// Func is the function wrapped by a controller.
// Multiple arguments can be passed as a struct.
type Func[T, R any] func(arg T) (R, error)

// Controller wraps a Func and decides, call by call,
// whether to invoke it right away, to defer it or to skip it.
//
// Instances are created with Debounce or Throttle
// and are safe for concurrent use.
type Controller[T, R any] struct {
	id      string
	name    string
	fn      Func[T, R]
	config  *effectiveConfig
	clock   Clock
	logger  Logger
	metrics *Metrics
	tracer  trace.Tracer
	onError func(error)

	// the lock is never held while fn runs.
	lock    sync.Mutex
	state   controllerState[T, R]
	stats   controllerCounters
	history *invocationHistory

	stopSignal func() bool
}

type controllerState[T, R any] struct {
	lastCallTime   optional.Value[time.Time]
	lastInvokeTime optional.Value[time.Time]

	// firstCallTime anchors the maxWait bound
	// until the first invocation happens.
	firstCallTime optional.Value[time.Time]

	pendingArg optional.Value[T]

	// timerSeq identifies the scheduled timer:
	// a timer firing with another sequence is stale.
	timer    Timer
	timerSeq uint64

	invokeSeq  uint64
	resultSeq  uint64
	lastResult R

	closed bool
}

type controllerCounters struct {
	calls         uint64
	skipped       uint64
	cancellations uint64
	failures      uint64
	invocations   InvocationCounts
}

// InvocationCounts holds the number of invocations per edge.
type InvocationCounts struct {
	Leading  uint64
	Trailing uint64
	MaxWait  uint64
	Flushed  uint64
}

// Total returns the number of invocations on any edge.
func (c InvocationCounts) Total() uint64 {
	return c.Leading + c.Trailing + c.MaxWait + c.Flushed
}

func (c *InvocationCounts) add(edge Edge) {
	switch edge {
	case EdgeLeading:
		c.Leading++
	case EdgeTrailing:
		c.Trailing++
	case EdgeMaxWait:
		c.MaxWait++
	case EdgeFlush:
		c.Flushed++
	}
}

// RuntimeStatistics is a point-in-time snapshot of a controller.
type RuntimeStatistics struct {
	Calls         uint64
	Skipped       uint64
	Cancellations uint64
	Failures      uint64
	Invocations   InvocationCounts

	Pending        bool
	HasInvoked     bool
	LastInvokeTime time.Time

	// RecentInvocations is ordered from the most recent.
	RecentInvocations []InvocationRecord
}

func (s RuntimeStatistics) String() string {
	return fmt.Sprintf("calls=%d invocations=%d skipped=%d cancellations=%d failures=%d pending=%v",
		s.Calls, s.Invocations.Total(), s.Skipped, s.Cancellations, s.Failures, s.Pending)
}

// ID returns the unique identifier assigned at construction.
func (c *Controller[T, R]) ID() string {
	return c.id
}

// Name returns the name given with WithName, or "default".
func (c *Controller[T, R]) Name() string {
	return c.name
}

// Pending reports whether a deferred invocation is scheduled.
func (c *Controller[T, R]) Pending() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state.timer != nil
}

// Cancel drops the scheduled invocation, if any, and resets
// the timing state so that the next call starts a new burst.
// It can be called any number of times.
func (c *Controller[T, R]) Cancel() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.cancel()
}

func (c *Controller[T, R]) cancel() {
	if c.state.timer != nil || c.state.pendingArg.IsSet() {
		c.stats.cancellations++
		c.metrics.observeCancellation(c.name)
	}

	c.stopTimer()
	c.state.pendingArg = optional.None[T]()
	c.state.lastCallTime = optional.None[time.Time]()
	c.state.lastInvokeTime = optional.None[time.Time]()
	c.state.firstCallTime = optional.None[time.Time]()
}

// abort is bound to the signal context.
func (c *Controller[T, R]) abort() {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.state.closed {
		return
	}
	c.logger.Debug(c.logPrefix() + "signal is done, cancelling pending invocation")
	c.cancel()
}

// Close cancels any pending invocation and releases the signal binding.
// Subsequent calls to Call and Flush return ErrControllerClosed.
func (c *Controller[T, R]) Close() {
	c.lock.Lock()
	if c.state.closed {
		c.lock.Unlock()
		return
	}
	c.cancel()
	c.state.closed = true
	stop := c.stopSignal
	c.stopSignal = nil
	c.lock.Unlock()

	if stop != nil {
		stop()
	}
	c.logger.Debug(c.logPrefix() + "closed")
}

// lastActivity returns the time of the last call since the last cancel.
func (c *Controller[T, R]) lastActivity() (time.Time, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state.lastCallTime.Get()
}

// Stats returns a snapshot of the runtime statistics.
func (c *Controller[T, R]) Stats() RuntimeStatistics {
	c.lock.Lock()
	defer c.lock.Unlock()

	out := RuntimeStatistics{
		Calls:             c.stats.calls,
		Skipped:           c.stats.skipped,
		Cancellations:     c.stats.cancellations,
		Failures:          c.stats.failures,
		Invocations:       c.stats.invocations,
		Pending:           c.state.timer != nil,
		RecentInvocations: c.history.records(),
	}
	out.LastInvokeTime, out.HasInvoked = c.state.lastInvokeTime.Get()
	return out
}

func (c *Controller[T, R]) logPrefix() string {
	return fmt.Sprintf("[controller %s/%s] ", c.name, c.id)
}
