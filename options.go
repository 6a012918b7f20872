package gobounce

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a controller or a group.
type Option func(*config)

// config holds the user-provided configuration
// before it gets validated by validateConfiguration.
//
// It is filled by Option functions instead of being passed as an exported
// struct, so that the edge defaults can differ between Debounce and Throttle
// and unset options (like maxWait) stay distinguishable from zero values.
type config struct {
	Wait        time.Duration `json:"wait" validate:"gte=0"`
	MaxWait     time.Duration `json:"maxWait" validate:"gte=0"`
	HistorySize int           `json:"historySize" validate:"gte=0,lte=4096"`
	IdleTTL     time.Duration `json:"idleTTL" validate:"gte=0"`
	Name        string        `json:"name" validate:"max=64"`

	HasMaxWait bool `json:"-"`
	Leading    bool `json:"-"`
	Trailing   bool `json:"-"`

	Signal       context.Context `json:"-" validate:"-"`
	Clock        Clock           `json:"-" validate:"-"`
	Logger       Logger          `json:"-" validate:"-"`
	Metrics      *Metrics        `json:"-" validate:"-"`
	Tracer       trace.Tracer    `json:"-" validate:"-"`
	ErrorHandler func(error)     `json:"-" validate:"-"`

	throttle bool
}

const (
	defaultHistorySize = 16
	defaultName        = "default"
)

func newConfig(wait time.Duration, throttle bool) *config {
	return &config{
		Wait:        wait,
		Leading:     throttle,
		Trailing:    true,
		HistorySize: defaultHistorySize,
		Name:        defaultName,
		throttle:    throttle,
	}
}

// WithLeading enables or disables the invocation on the leading edge,
// i.e. on the first call of a burst.
//
// Defaults to false for Debounce and to true for Throttle.
func WithLeading(leading bool) Option {
	return func(c *config) {
		c.Leading = leading
	}
}

// WithTrailing enables or disables the invocation on the trailing edge,
// i.e. once the burst has settled. Defaults to true.
func WithTrailing(trailing bool) Option {
	return func(c *config) {
		c.Trailing = trailing
	}
}

// WithMaxWait sets the maximum time an invocation can be deferred
// while calls keep arriving. A value smaller than the wait
// is raised to the wait.
//
// Throttle ignores this option: it always uses maxWait = wait.
func WithMaxWait(maxWait time.Duration) Option {
	return func(c *config) {
		c.MaxWait = maxWait
		c.HasMaxWait = true
	}
}

// WithSignal binds the controller to a context:
// when the context is done, any pending invocation is cancelled.
func WithSignal(ctx context.Context) Option {
	return func(c *config) {
		c.Signal = ctx
	}
}

// WithClock overrides the time source.
// You should usually not override it outside of tests.
func WithClock(clock Clock) Option {
	return func(c *config) {
		c.Clock = clock
	}
}

// WithLogger sets the logger used by the controller.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.Logger = logger
	}
}

// WithMetrics reports calls and invocations to the given collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.Metrics = m
	}
}

// WithTracer records a span for every invocation.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.Tracer = tracer
	}
}

// WithErrorHandler receives the errors returned by deferred (timer-fired)
// invocations, which have no caller to return to.
// By default they are logged at error level.
func WithErrorHandler(handler func(error)) Option {
	return func(c *config) {
		c.ErrorHandler = handler
	}
}

// WithName labels the controller in logs, metrics and spans.
// Keep the set of names small: it is used as a metric label.
func WithName(name string) Option {
	return func(c *config) {
		c.Name = name
	}
}

// WithHistorySize sets how many recent invocations are kept for Stats.
// Zero disables the history. Defaults to 16.
func WithHistorySize(size int) Option {
	return func(c *config) {
		c.HistorySize = size
	}
}

// WithIdleTTL only applies to groups: controllers that have not been
// called for longer than ttl and have nothing pending get evicted.
// Zero disables eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.IdleTTL = ttl
	}
}
