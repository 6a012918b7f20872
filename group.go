package gobounce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// evictionCheckInterval is the number of lookups between
// two automatic evictions of idle controllers.
const evictionCheckInterval = 512

// KeyedFunc is the function wrapped by a group.
// It receives the key of the controller that invoked it.
type KeyedFunc[K comparable, T, R any] func(key K, arg T) (R, error)

// Group holds one controller per key, all sharing the same configuration.
// Calls for different keys never affect each other.
//
// Controllers are created on first use. When an idle TTL is configured
// with WithIdleTTL, controllers without pending work that were not used
// for longer than the TTL are closed and forgotten.
type Group[K comparable, T, R any] struct {
	fn     KeyedFunc[K, T, R]
	config *effectiveConfig
	cfg    *config
	logger Logger
	clock  Clock

	lock    sync.Mutex
	entries map[K]*groupEntry[T, R]
	hits    uint64
	closed  bool

	stopSignal func() bool
}

type groupEntry[T, R any] struct {
	controller *Controller[T, R]
	lastSeen   time.Time
}

// NewGroup returns a group of debounced controllers.
// See Debounce for the meaning of wait and of the options.
func NewGroup[K comparable, T, R any](fn KeyedFunc[K, T, R], wait time.Duration, opts ...Option) (*Group[K, T, R], error) {
	cfg := newConfig(wait, false)
	for _, opt := range opts {
		opt(cfg)
	}
	return buildGroup(fn, cfg)
}

// NewThrottleGroup returns a group of throttled controllers.
// See Throttle for the meaning of wait and of the options.
func NewThrottleGroup[K comparable, T, R any](fn KeyedFunc[K, T, R], wait time.Duration, opts ...Option) (*Group[K, T, R], error) {
	cfg := newConfig(wait, true)
	for _, opt := range opts {
		opt(cfg)
	}
	return buildGroup(fn, cfg)
}

func buildGroup[K comparable, T, R any](fn KeyedFunc[K, T, R], cfg *config) (*Group[K, T, R], error) {
	if fn == nil {
		return nil, &InvalidConfiguration{Reason: "fn must not be nil"}
	}

	logger := resolveLogger(cfg)

	parsed, err := validateConfiguration(cfg, logger)
	if err != nil {
		return nil, err
	}

	g := &Group[K, T, R]{
		fn:      fn,
		config:  parsed,
		cfg:     cfg,
		logger:  logger,
		clock:   cfg.Clock,
		entries: make(map[K]*groupEntry[T, R]),
	}
	if g.clock == nil {
		g.clock = defaultClock
	}

	// a single binding for the whole group, the controllers get none
	if cfg.Signal != nil {
		g.stopSignal = context.AfterFunc(cfg.Signal, func() {
			g.logger.Debug("group signal is done, cancelling all pending invocations")
			g.CancelAll()
		})
	}
	return g, nil
}

func validateKey[K comparable](key K) error {
	if s, ok := any(key).(string); ok && strings.TrimSpace(s) == "" {
		return &InvalidKey{Key: s}
	}
	return nil
}

// For returns the controller bound to key, creating it if needed.
//
// Calls made directly on the returned controller keep it alive too,
// but a controller that is only held is idle: once evicted it is closed
// and returns ErrControllerClosed, so fetch it again with For.
func (g *Group[K, T, R]) For(key K) (*Controller[T, R], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	now := g.clock.Now()

	g.lock.Lock()
	defer g.lock.Unlock()

	if g.closed {
		return nil, &ControllerClosed{}
	}

	g.hits++
	if g.config.IdleTTL > 0 && g.hits%evictionCheckInterval == 0 {
		g.evictIdle(now)
	}

	entry, ok := g.entries[key]
	if !ok {
		fn := g.fn
		entry = &groupEntry[T, R]{
			controller: newController(func(arg T) (R, error) {
				return fn(key, arg)
			}, g.config, g.cfg, g.logger),
		}
		g.entries[key] = entry
		g.logger.Debug(fmt.Sprintf("created controller %s for key %v", entry.controller.ID(), key))
	}
	entry.lastSeen = now

	return entry.controller, nil
}

func (g *Group[K, T, R]) lookup(key K) *Controller[T, R] {
	g.lock.Lock()
	defer g.lock.Unlock()

	if entry, ok := g.entries[key]; ok {
		return entry.controller
	}
	return nil
}

// Call forwards the call to the controller bound to key.
func (g *Group[K, T, R]) Call(key K, arg T) (R, error) {
	for {
		c, err := g.For(key)
		if err != nil {
			var zero R
			return zero, err
		}

		res, err := c.Call(arg)
		if errors.Is(err, ErrControllerClosed) && !g.isClosed() {
			// evicted between the lookup and the call
			continue
		}
		return res, err
	}
}

// Cancel drops the pending invocation for key, if any.
func (g *Group[K, T, R]) Cancel(key K) {
	if c := g.lookup(key); c != nil {
		c.Cancel()
	}
}

// Flush runs the pending invocation for key, if any.
func (g *Group[K, T, R]) Flush(key K) (R, error) {
	if c := g.lookup(key); c != nil {
		return c.Flush()
	}
	var zero R
	return zero, nil
}

// Pending reports whether an invocation is scheduled for key.
func (g *Group[K, T, R]) Pending(key K) bool {
	if c := g.lookup(key); c != nil {
		return c.Pending()
	}
	return false
}

// Stats returns the statistics of the controller bound to key.
// The boolean is false when no controller exists for key.
func (g *Group[K, T, R]) Stats(key K) (RuntimeStatistics, bool) {
	if c := g.lookup(key); c != nil {
		return c.Stats(), true
	}
	return RuntimeStatistics{}, false
}

func (g *Group[K, T, R]) controllers() []*Controller[T, R] {
	g.lock.Lock()
	defer g.lock.Unlock()

	out := make([]*Controller[T, R], 0, len(g.entries))
	for _, entry := range g.entries {
		out = append(out, entry.controller)
	}
	return out
}

// FlushAll runs every pending invocation.
// The errors of the failed invocations are joined.
func (g *Group[K, T, R]) FlushAll() error {
	var errs []error
	for _, c := range g.controllers() {
		if _, err := c.Flush(); err != nil && !errors.Is(err, ErrControllerClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CancelAll drops every pending invocation.
func (g *Group[K, T, R]) CancelAll() {
	for _, c := range g.controllers() {
		c.Cancel()
	}
}

// Len returns the number of live controllers.
func (g *Group[K, T, R]) Len() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.entries)
}

// EvictIdle closes and forgets the controllers that have nothing pending
// and were neither looked up nor called for longer than the idle TTL.
// It returns the number of evicted controllers.
// Without an idle TTL nothing is evicted.
func (g *Group[K, T, R]) EvictIdle() int {
	if g.config.IdleTTL <= 0 {
		return 0
	}

	now := g.clock.Now()
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.evictIdle(now)
}

// evictIdle requires the group lock.
func (g *Group[K, T, R]) evictIdle(now time.Time) int {
	evicted := 0
	for key, entry := range g.entries {
		seen := entry.lastSeen
		if called, ok := entry.controller.lastActivity(); ok && called.After(seen) {
			seen = called
		}
		if now.Sub(seen) < g.config.IdleTTL || entry.controller.Pending() {
			continue
		}
		delete(g.entries, key)
		entry.controller.Close()
		evicted++
	}
	if evicted > 0 {
		g.logger.Debug(fmt.Sprintf("evicted %d idle controllers", evicted))
	}
	return evicted
}

func (g *Group[K, T, R]) isClosed() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.closed
}

// Close closes every controller and releases the signal binding.
// The group can't be used afterwards.
func (g *Group[K, T, R]) Close() {
	g.lock.Lock()
	if g.closed {
		g.lock.Unlock()
		return
	}
	g.closed = true
	entries := g.entries
	g.entries = make(map[K]*groupEntry[T, R])
	stop := g.stopSignal
	g.stopSignal = nil
	g.lock.Unlock()

	if stop != nil {
		stop()
	}
	for _, entry := range entries {
		entry.controller.Close()
	}
}
