package devauthority

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	routeLogin    = "login"
	routeRegister = "register"
	routeRefresh  = "refresh"
	routeLogout   = "logout"
	routeMe       = "me"

	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type requestMetrics struct {
	requests *prometheus.CounterVec
}

func newRequestMetrics(registerer prometheus.Registerer) (*requestMetrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripauth",
		Subsystem: "authority",
		Name:      "requests_total",
		Help:      "Authority requests by route and outcome.",
	}, []string{"route", "outcome"})
	if registerer != nil {
		if err := registerer.Register(requests); err != nil {
			var alreadyRegistered prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyRegistered) {
				return nil, err
			}
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, err
			}
			requests = existing
		}
	}
	return &requestMetrics{requests: requests}, nil
}

func (metrics *requestMetrics) observe(route string, outcome string) {
	metrics.requests.WithLabelValues(route, outcome).Inc()
}
