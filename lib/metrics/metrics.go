// Package metrics provides Prometheus collectors for the tunnel controller
// and the daemon around it. Every method is safe on a nil *Metrics, so
// callers that do not care about metrics can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/go-i2p/wgmobile/lib/errors"
)

const namespace = "wgmobile"

// ResultOK labels a lifecycle call that succeeded. Failed calls are
// labelled with their error kind.
const ResultOK = "ok"

// Metrics holds all Prometheus metrics for one controller instance.
type Metrics struct {
	// LifecycleCalls counts controller operations by op and result.
	LifecycleCalls *prometheus.CounterVec
	// BackendDuration observes how long each backend call took.
	BackendDuration *prometheus.HistogramVec
	// TunnelUp is 1 while the last lifecycle call left the tunnel up.
	TunnelUp prometheus.Gauge
	// EventsDropped counts events lost because the channel was full.
	EventsDropped prometheus.Counter
	// RateLimited counts RPC calls rejected by the throttle, by method.
	RateLimited *prometheus.CounterVec
	// StartTime is the Unix time the daemon started.
	StartTime prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LifecycleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_calls_total",
			Help:      "Tunnel lifecycle calls by operation and result.",
		}, []string{"op", "result"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Duration of backend calls by operation.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		TunnelUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tunnel_up",
			Help:      "Whether the tunnel is up (1=yes, 0=no).",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Controller events dropped because no one was reading.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_rate_limited_total",
			Help:      "RPC calls rejected by rate limiting.",
		}, []string{"method"}),
		StartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Unix timestamp when the daemon started.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LifecycleCalls,
			m.BackendDuration,
			m.TunnelUp,
			m.EventsDropped,
			m.RateLimited,
			m.StartTime,
		)
	}
	return m
}

// Result returns the result label for err.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	return string(apperrors.KindOf(err))
}

// ObserveCall records a finished lifecycle call.
func (m *Metrics) ObserveCall(op string, err error) {
	if m == nil {
		return
	}
	m.LifecycleCalls.WithLabelValues(op, Result(err)).Inc()
}

// ObserveBackend records the duration of one backend call.
func (m *Metrics) ObserveBackend(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetTunnelUp sets the tunnel gauge.
func (m *Metrics) SetTunnelUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.TunnelUp.Set(1)
	} else {
		m.TunnelUp.Set(0)
	}
}

// EventDropped counts one dropped event.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// RateLimitedCall counts one throttled RPC call.
func (m *Metrics) RateLimitedCall(method string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(method).Inc()
}

// RecordStartTime records the current time as the start time.
func (m *Metrics) RecordStartTime() {
	if m == nil {
		return
	}
	m.StartTime.Set(float64(time.Now().Unix()))
}

// Handler returns an http.Handler that exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
