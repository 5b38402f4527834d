package session

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricSignInSuccess   = "session.sign_in.success"
	metricSignInFailure   = "session.sign_in.failure"
	metricSignInLocked    = "session.sign_in.locked"
	metricSignUpSuccess   = "session.sign_up.success"
	metricSignUpFailure   = "session.sign_up.failure"
	metricRefreshSuccess  = "session.refresh.success"
	metricRefreshFailure  = "session.refresh.failure"
	metricRefreshStale    = "session.refresh.stale"
	metricSignOut         = "session.sign_out"
	metricExpired         = "session.expired"
	metricRestoreSuccess  = "session.restore.success"
	metricRestoreEmpty    = "session.restore.empty"
	metricRestoreFailure  = "session.restore.failure"
	metricMalformedToken  = "session.token.malformed"
	metricSupersededGrant = "session.grant.superseded"
)

// MetricsRecorder increments counters for session events.
type MetricsRecorder interface {
	Increment(event string)
}

type discardMetrics struct{}

func (discardMetrics) Increment(string) {}

// CounterMetrics implements MetricsRecorder with in-memory counts.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}

// PrometheusMetrics exports session events as tripauth_session_events_total{event}.
type PrometheusMetrics struct {
	events *prometheus.CounterVec
}

// NewPrometheusMetrics registers the counter vector on registerer, reusing an
// existing registration.
func NewPrometheusMetrics(registerer prometheus.Registerer) (*PrometheusMetrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripauth",
		Subsystem: "session",
		Name:      "events_total",
		Help:      "Session lifecycle events by kind.",
	}, []string{"event"})
	if registerer == nil {
		return &PrometheusMetrics{events: events}, nil
	}
	if err := registerer.Register(events); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if !errors.As(err, &alreadyRegistered) {
			return nil, err
		}
		existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		events = existing
	}
	return &PrometheusMetrics{events: events}, nil
}

// Increment increases the counter for the given event.
func (recorder *PrometheusMetrics) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}

// Counter exposes the labelled counter, mainly for tests.
func (recorder *PrometheusMetrics) Counter(event string) prometheus.Counter {
	return recorder.events.WithLabelValues(event)
}
