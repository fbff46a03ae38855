// Package metrics exposes Prometheus collectors for the phone stream, the
// dial-pad state machine and the timer subsystem.
//
// A Metrics value plugs straight into each component:
//
//	m := metrics.New(prometheus.NewRegistry())
//	stream := phone.NewStream(phone.StreamConfig{Metrics: m}, ...)
//	engine := dtmf.NewEngine(caps, dtmf.WithObserver(m))
//	timers := timer.NewManager(timer.WithListener(m.TimerListener()))
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/timer"
)

const namespace = "iroh"

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	phoneConnected  prometheus.Gauge
	phoneReconnects prometheus.Counter
	phoneEvents     *prometheus.CounterVec
	phoneDropped    *prometheus.CounterVec

	transitions     *prometheus.CounterVec
	handlerCalls    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	handlerErrors   *prometheus.CounterVec

	timersActive prometheus.Gauge
	timerEvents  *prometheus.CounterVec
}

// New registers the collectors, plus the Go runtime and process collectors,
// on reg.
func New(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		phoneConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "phone", Name: "connected",
			Help: "Whether the phone event stream is connected (1) or not (0)",
		}),
		phoneReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "phone", Name: "reconnects_total",
			Help: "Total number of phone event stream reconnections",
		}),
		phoneEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "phone", Name: "events_total",
			Help: "Phone events received, by type",
		}, []string{"type"}),
		phoneDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "phone", Name: "events_dropped_total",
			Help: "Phone events dropped before dispatch, by reason",
		}, []string{"reason"}),

		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dtmf", Name: "transitions_total",
			Help: "State machine transitions",
		}, []string{"from", "to", "reason"}),
		handlerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dtmf", Name: "handler_invocations_total",
			Help: "Matched handlers, by handler and outcome",
		}, []string{"handler", "outcome"}),
		handlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dtmf", Name: "handler_duration_seconds",
			Help:    "Time spent in bound handlers",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		handlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dtmf", Name: "handler_errors_total",
			Help: "Handlers that returned an error or panicked",
		}, []string{"handler"}),

		timersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "timer", Name: "active",
			Help: "Timers currently counting down",
		}),
		timerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "timer", Name: "events_total",
			Help: "Timer lifecycle events, by event",
		}, []string{"event"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SetConnected records the phone stream connection state.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.phoneConnected.Set(1)
		return
	}
	m.phoneConnected.Set(0)
}

// IncReconnect counts a phone stream reconnection.
func (m *Metrics) IncReconnect() { m.phoneReconnects.Inc() }

// IncReceived counts a well-formed phone event.
func (m *Metrics) IncReceived(eventType string) {
	m.phoneEvents.WithLabelValues(label(eventType)).Inc()
}

// IncDropped counts a dropped phone event.
func (m *Metrics) IncDropped(reason string) {
	m.phoneDropped.WithLabelValues(label(reason)).Inc()
}

// Transition implements dtmf.Observer.
func (m *Metrics) Transition(ev dtmf.TransitionEvent) {
	m.transitions.WithLabelValues(label(ev.From), label(ev.To), label(string(ev.Reason))).Inc()
}

// HandlerDone implements dtmf.Observer.
func (m *Metrics) HandlerDone(ev dtmf.HandlerEvent) {
	if ev.Handler == "" {
		return
	}
	outcome := ev.Outcome()
	m.handlerCalls.WithLabelValues(ev.Handler, outcome).Inc()
	if ev.Invoked {
		m.handlerDuration.WithLabelValues(ev.Handler).Observe(ev.Duration.Seconds())
	}
	if outcome == dtmf.OutcomeFailed {
		m.handlerErrors.WithLabelValues(ev.Handler).Inc()
	}
}

// TimerListener returns a timer.Listener that tracks active timers.
func (m *Metrics) TimerListener() timer.Listener {
	return func(_ context.Context, ev timer.Event, _ timer.Info) {
		m.timerEvents.WithLabelValues(string(ev)).Inc()
		switch ev {
		case timer.EventCreated:
			m.timersActive.Inc()
		case timer.EventCompleted, timer.EventCancelled:
			m.timersActive.Dec()
		}
	}
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
