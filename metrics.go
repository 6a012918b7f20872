package gobounce

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors a controller reports to.
// A single Metrics can be shared by many controllers:
// they are told apart by the "controller" label, i.e. their name.
type Metrics struct {
	calls         *prometheus.CounterVec
	invocations   *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	failures      *prometheus.CounterVec
	delay         *prometheus.HistogramVec
}

// NewMetrics builds the collectors under the given namespace
// and registers them with reg. A nil reg skips the registration.
//
// Registering twice under the same namespace is not an error:
// the collectors already registered are reused.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gobounce",
			Name:      "calls_total",
			Help:      "Calls received by the controller.",
		}, []string{"controller"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gobounce",
			Name:      "invocations_total",
			Help:      "Invocations of the wrapped function, by edge.",
		}, []string{"controller", "edge"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gobounce",
			Name:      "skipped_total",
			Help:      "Calls dropped without scheduling an invocation.",
		}, []string{"controller"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gobounce",
			Name:      "cancellations_total",
			Help:      "Pending invocations dropped by a cancel.",
		}, []string{"controller"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gobounce",
			Name:      "failures_total",
			Help:      "Invocations that returned an error.",
		}, []string{"controller"}),
		delay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gobounce",
			Name:      "scheduled_delay_seconds",
			Help:      "Delay of the scheduled trailing invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"controller"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.calls = register(reg, m.calls, &err)
	m.invocations = register(reg, m.invocations, &err)
	m.skipped = register(reg, m.skipped, &err)
	m.cancellations = register(reg, m.cancellations, &err)
	m.failures = register(reg, m.failures, &err)
	m.delay = register(reg, m.delay, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errOut *error) C {
	if *errOut != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errOut = err
	}
	return c
}

func (m *Metrics) observeCall(name string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(name).Inc()
}

func (m *Metrics) observeInvocation(name string, edge Edge) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(name, edge.String()).Inc()
}

func (m *Metrics) observeSkipped(name string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(name).Inc()
}

func (m *Metrics) observeCancellation(name string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(name).Inc()
}

func (m *Metrics) observeFailure(name string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(name).Inc()
}

func (m *Metrics) observeDelay(name string, delay time.Duration) {
	if m == nil {
		return
	}
	m.delay.WithLabelValues(name).Observe(delay.Seconds())
}
