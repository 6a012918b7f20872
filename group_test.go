package gobounce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyedRecorder struct {
	clock *virtualClock
	lock  sync.Mutex
	calls map[string][]recordedCall[string]
	err   error
}

func (r *keyedRecorder) fn(key string, arg string) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.calls[key] = append(r.calls[key], recordedCall[string]{At: r.clock.Elapsed(), Arg: arg})
	if r.err != nil {
		return "", r.err
	}
	return key + ":" + arg, nil
}

func (r *keyedRecorder) Calls(key string) []recordedCall[string] {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]recordedCall[string](nil), r.calls[key]...)
}

func buildGroupInstance(t *testing.T, throttle bool, wait time.Duration, opts ...Option) (*Group[string, string, string], *keyedRecorder, *virtualClock) {
	clock := newVirtualClock()
	rec := &keyedRecorder{clock: clock, calls: map[string][]recordedCall[string]{}}

	all := append([]Option{WithClock(clock), WithLogger(NewNoOpLogger())}, opts...)

	var g *Group[string, string, string]
	var err error
	if throttle {
		g, err = NewThrottleGroup(rec.fn, wait, all...)
	} else {
		g, err = NewGroup(rec.fn, wait, all...)
	}
	require.NoError(t, err)
	return g, rec, clock
}

func TestGroupKeysAreIndependent(t *testing.T) {
	g, rec, clock := buildGroupInstance(t, false, 100*ms)

	_, err := g.Call("a", "a1")
	require.NoError(t, err)
	clock.TimeTravel(50)
	_, err = g.Call("b", "b1")
	require.NoError(t, err)
	_, err = g.Call("a", "a2")
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.True(t, g.Pending("a"))
	assert.True(t, g.Pending("b"))
	assert.False(t, g.Pending("c"))

	clock.TimeTravel(100)
	assert.Equal(t, []recordedCall[string]{{At: 150, Arg: "a2"}}, rec.Calls("a"))
	assert.Equal(t, []recordedCall[string]{{At: 150, Arg: "b1"}}, rec.Calls("b"))

	res, err := g.Call("a", "a3")
	require.NoError(t, err)
	assert.Equal(t, "a:a2", res)
}

func TestGroupThrottle(t *testing.T) {
	g, rec, clock := buildGroupInstance(t, true, 100*ms)

	res, err := g.Call("a", "x")
	require.NoError(t, err)
	assert.Equal(t, "a:x", res)

	res, err = g.Call("b", "y")
	require.NoError(t, err)
	assert.Equal(t, "b:y", res)

	clock.TimeTravel(1000)
	assert.Len(t, rec.Calls("a"), 1)
	assert.Len(t, rec.Calls("b"), 1)
}

func TestGroupRejectsBlankKeys(t *testing.T) {
	g, _, _ := buildGroupInstance(t, false, 100*ms)

	for _, key := range []string{"", " ", "\t"} {
		_, err := g.Call(key, "x")
		assert.ErrorIs(t, err, ErrInvalidKey)

		_, err = g.For(key)
		assert.ErrorIs(t, err, ErrInvalidKey)
	}
	assert.Equal(t, 0, g.Len())
}

func TestGroupWithNonStringKeys(t *testing.T) {
	clock := newVirtualClock()
	var seen []int
	g, err := NewGroup(func(key int, arg string) (int, error) {
		seen = append(seen, key)
		return key, nil
	}, 100*ms, WithClock(clock), WithLogger(NewNoOpLogger()))
	require.NoError(t, err)

	_, err = g.Call(0, "zero")
	require.NoError(t, err)
	_, err = g.Call(1, "one")
	require.NoError(t, err)

	clock.TimeTravel(100)
	assert.ElementsMatch(t, []int{0, 1}, seen)
}

func TestGroupForReturnsSameController(t *testing.T) {
	g, _, _ := buildGroupInstance(t, false, 100*ms)

	first, err := g.For("a")
	require.NoError(t, err)
	second, err := g.For("a")
	require.NoError(t, err)
	other, err := g.For("b")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}

func TestGroupControlOperations(t *testing.T) {
	g, rec, clock := buildGroupInstance(t, false, 100*ms)

	_, _ = g.Call("a", "a1")
	_, _ = g.Call("b", "b1")
	_, _ = g.Call("c", "c1")

	g.Cancel("a")
	assert.False(t, g.Pending("a"))
	g.Cancel("missing")

	res, err := g.Flush("b")
	require.NoError(t, err)
	assert.Equal(t, "b:b1", res)

	res, err = g.Flush("missing")
	assert.NoError(t, err)
	assert.Equal(t, "", res)

	stats, ok := g.Stats("b")
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Invocations.Flushed)
	_, ok = g.Stats("missing")
	assert.False(t, ok)

	require.NoError(t, g.FlushAll())
	assert.Len(t, rec.Calls("c"), 1)

	_, _ = g.Call("a", "a2")
	g.CancelAll()
	assert.False(t, g.Pending("a"))

	clock.TimeTravel(1000)
	assert.Empty(t, rec.Calls("a"))
	assert.Len(t, rec.Calls("b"), 1)
	assert.Len(t, rec.Calls("c"), 1)
}

func TestGroupFlushAllJoinsErrors(t *testing.T) {
	g, rec, _ := buildGroupInstance(t, false, 100*ms)
	boom := errors.New("boom")
	rec.err = boom

	_, _ = g.Call("a", "x")
	_, _ = g.Call("b", "y")

	err := g.FlushAll()
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.Pending("a"))
	assert.False(t, g.Pending("b"))
}

func TestGroupEvictIdle(t *testing.T) {
	g, rec, clock := buildGroupInstance(t, false, 5*time.Second, WithIdleTTL(time.Second))

	_, _ = g.For("idle")
	_, _ = g.Call("busy", "x")
	clock.TimeTravel(2000)

	// a pending invocation keeps the controller alive
	assert.Equal(t, 1, g.EvictIdle())
	assert.Equal(t, 1, g.Len())
	assert.True(t, g.Pending("busy"))
	assert.Equal(t, 0, g.EvictIdle())

	clock.TimeTravel(3000)
	assert.Len(t, rec.Calls("busy"), 1)
	assert.Equal(t, 1, g.EvictIdle())
	assert.Equal(t, 0, g.Len())
}

func TestGroupEvictIdleKeepsControllersCalledDirectly(t *testing.T) {
	g, rec, clock := buildGroupInstance(t, true, 100*ms, WithTrailing(false), WithIdleTTL(10*ms))

	held, err := g.For("held")
	require.NoError(t, err)
	clock.TimeTravel(50)

	res, err := held.Call("x")
	require.NoError(t, err)
	assert.Equal(t, "held:x", res)
	assert.False(t, held.Pending())

	clock.TimeTravel(5)
	assert.Equal(t, 0, g.EvictIdle())
	assert.Equal(t, 1, g.Len())

	_, err = held.Call("y")
	assert.NoError(t, err)

	clock.TimeTravel(20)
	assert.Equal(t, 1, g.EvictIdle())
	_, err = held.Call("z")
	assert.ErrorIs(t, err, ErrControllerClosed)
	assert.Equal(t, []recordedCall[string]{{At: 50, Arg: "x"}}, rec.Calls("held"))
}

func TestGroupEvictIdleWithoutTTL(t *testing.T) {
	g, _, clock := buildGroupInstance(t, false, 100*ms)

	_, _ = g.For("a")
	clock.TimeTravel(int64(24 * time.Hour / time.Millisecond))
	assert.Equal(t, 0, g.EvictIdle())
	assert.Equal(t, 1, g.Len())
}

func TestGroupEvictsAutomatically(t *testing.T) {
	g, rec, clock := buildGroupInstance(t, false, 100*ms, WithIdleTTL(time.Second))

	old, err := g.For("old")
	require.NoError(t, err)
	clock.TimeTravel(2000)

	for i := 1; i < evictionCheckInterval; i++ {
		_, err := g.Call("new", fmt.Sprintf("%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, g.Len())
	_, err = old.Call("x")
	assert.ErrorIs(t, err, ErrControllerClosed)

	clock.TimeTravel(100)
	assert.Equal(t, []recordedCall[string]{{At: 2100, Arg: fmt.Sprintf("%d", evictionCheckInterval-1)}}, rec.Calls("new"))
}

func TestGroupSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, rec, clock := buildGroupInstance(t, false, 100*ms, WithSignal(ctx))

	_, _ = g.Call("a", "x")
	_, _ = g.Call("b", "y")

	cancel()
	assert.Eventually(t, func() bool {
		return !g.Pending("a") && !g.Pending("b")
	}, time.Second, time.Millisecond)

	clock.TimeTravel(1000)
	assert.Empty(t, rec.Calls("a"))
	assert.Empty(t, rec.Calls("b"))

	_, err := g.Call("a", "z")
	assert.NoError(t, err)
	assert.True(t, g.Pending("a"))
}

func TestGroupClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, rec, clock := buildGroupInstance(t, false, 100*ms, WithSignal(ctx))

	a, err := g.For("a")
	require.NoError(t, err)
	_, _ = g.Call("a", "x")

	g.Close()
	assert.Equal(t, 0, g.Len())
	assert.Nil(t, g.stopSignal)

	_, err = g.Call("a", "y")
	assert.ErrorIs(t, err, ErrControllerClosed)
	_, err = a.Call("y")
	assert.ErrorIs(t, err, ErrControllerClosed)

	assert.NotPanics(t, g.Close)

	clock.TimeTravel(1000)
	assert.Empty(t, rec.Calls("a"))
}
