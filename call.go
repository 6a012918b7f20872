package gobounce

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fabiofenoglio/gobounce/internal/optional"
)

// invocation is the work taken out of the state under lock,
// to be run after the lock is released.
type invocation[T any] struct {
	arg  T
	edge Edge
	seq  uint64
}

// Call registers a call with the given argument.
//
// When the configured edges require an immediate invocation
// the wrapped function runs synchronously and its result and error
// are returned. Otherwise the invocation is deferred, or skipped when
// the trailing edge is disabled and the wait has not elapsed yet,
// and the result of the last successful invocation is returned,
// which is the zero value of R until one happened.
func (c *Controller[T, R]) Call(arg T) (R, error) {
	now := c.clock.Now()

	c.lock.Lock()

	if c.state.closed {
		c.lock.Unlock()
		var zero R
		return zero, &ControllerClosed{ID: c.id}
	}

	c.stats.calls++
	c.metrics.observeCall(c.name)

	isFirstCall := !c.state.firstCallTime.IsSet()
	if isFirstCall {
		c.state.firstCallTime = optional.Of(now)
	}
	hasInvoked := c.state.lastInvokeTime.IsSet()

	anchor, _ := c.state.firstCallTime.Get()
	if hasInvoked {
		anchor, _ = c.state.lastInvokeTime.Get()
	}
	sinceLastInvoke := now.Sub(anchor)
	if sinceLastInvoke < 0 {
		sinceLastInvoke = 0
	}

	c.state.lastCallTime = optional.Of(now)
	c.state.pendingArg = optional.Of(arg)

	cfg := c.config
	var edge Edge
	switch {
	case cfg.Leading && (!hasInvoked || (!cfg.Trailing && sinceLastInvoke >= cfg.Wait)):
		edge = EdgeLeading
	case cfg.HasMaxWait && !isFirstCall && sinceLastInvoke >= cfg.MaxWait:
		edge = EdgeMaxWait
	}

	if edge != 0 {
		c.stopTimer()
		inv := c.beginInvocation(now, edge)
		c.lock.Unlock()
		return c.run(inv)
	}

	defer c.lock.Unlock()

	// without a trailing edge, calls within the window are dropped
	if !cfg.Trailing && sinceLastInvoke < cfg.Wait {
		c.state.pendingArg = optional.None[T]()
		c.stats.skipped++
		c.metrics.observeSkipped(c.name)
		return c.state.lastResult, nil
	}

	delay := cfg.Wait
	if cfg.HasMaxWait {
		if remaining := cfg.MaxWait - sinceLastInvoke; remaining < delay {
			delay = remaining
		}
	}
	if delay < 0 {
		delay = 0
	}
	c.schedule(delay)

	return c.state.lastResult, nil
}

// Flush runs the scheduled invocation right away, if any,
// returning its result. Without a scheduled invocation
// it returns the zero value of R and has no effect.
func (c *Controller[T, R]) Flush() (R, error) {
	var zero R

	now := c.clock.Now()
	c.lock.Lock()

	if c.state.closed {
		c.lock.Unlock()
		return zero, &ControllerClosed{ID: c.id}
	}
	if c.state.timer == nil {
		c.lock.Unlock()
		return zero, nil
	}

	c.stopTimer()
	inv := c.beginInvocation(now, EdgeFlush)
	c.lock.Unlock()

	return c.run(inv)
}

// schedule replaces the timer. Lock must be held.
func (c *Controller[T, R]) schedule(delay time.Duration) {
	c.stopTimer()
	seq := c.state.timerSeq
	c.state.timer = c.clock.AfterFunc(delay, func() {
		c.fire(seq)
	})
	c.metrics.observeDelay(c.name, delay)
}

// stopTimer stops the current timer, if any, and invalidates
// any timer callback already on its way. Lock must be held.
func (c *Controller[T, R]) stopTimer() {
	if c.state.timer != nil {
		c.state.timer.Stop()
		c.state.timer = nil
	}
	c.state.timerSeq++
}

// fire is the timer callback.
func (c *Controller[T, R]) fire(seq uint64) {
	now := c.clock.Now()
	c.lock.Lock()

	if c.state.timer == nil || c.state.timerSeq != seq {
		c.lock.Unlock()
		return
	}
	c.state.timer = nil
	c.state.timerSeq++
	inv := c.beginInvocation(now, EdgeTrailing)
	c.lock.Unlock()

	if _, err := c.run(inv); err != nil {
		c.onError(err)
	}
}

// beginInvocation takes the pending argument and moves the timing state
// forward, so that the controller is consistent before fn runs.
// Lock must be held.
func (c *Controller[T, R]) beginInvocation(now time.Time, edge Edge) invocation[T] {
	arg, _ := c.state.pendingArg.Get()
	c.state.pendingArg = optional.None[T]()

	if last, ok := c.state.lastInvokeTime.Get(); ok && now.Before(last) {
		now = last
	}
	c.state.lastInvokeTime = optional.Of(now)
	c.state.invokeSeq++

	c.stats.invocations.add(edge)
	c.history.push(InvocationRecord{At: now, Edge: edge})
	c.metrics.observeInvocation(c.name, edge)

	return invocation[T]{arg: arg, edge: edge, seq: c.state.invokeSeq}
}

// run calls fn without holding the lock.
func (c *Controller[T, R]) run(inv invocation[T]) (R, error) {
	_, span := c.tracer.Start(context.Background(), "gobounce.invoke",
		trace.WithAttributes(
			attribute.String("gobounce.controller.id", c.id),
			attribute.String("gobounce.controller.name", c.name),
			attribute.String("gobounce.edge", inv.edge.String()),
		),
	)
	defer span.End()

	res, err := c.fn(inv.arg)

	c.lock.Lock()
	defer c.lock.Unlock()

	if err != nil {
		c.stats.failures++
		c.metrics.observeFailure(c.name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	if inv.seq > c.state.resultSeq {
		c.state.resultSeq = inv.seq
		c.state.lastResult = res
	}
	return res, nil
}
