package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rtu"

// Metrics holds the collectors for one client instance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionState prometheus.Gauge
	Connects        prometheus.Counter
	Restarts        prometheus.Counter
	Frames          prometheus.Counter
	Envelopes       *prometheus.CounterVec
	ParseErrors     prometheus.Counter
	Dropped         *prometheus.CounterVec
	HandlerPanics   prometheus.Counter
	Requests        *prometheus.CounterVec
	SecurityStops   prometheus.Counter
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep instances isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=initializing, 1=ready, 2=closing, 3=closed, 4=error, 5=restarting).",
		}),
		Connects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Total number of successful transport connects.",
		}),
		Restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Total number of scheduled connection restarts.",
		}),
		Frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of raw frames received from the transport.",
		}),
		Envelopes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Total number of decoded envelopes, by kind.",
		}, []string{"kind"}),
		ParseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total number of malformed inbound frames.",
		}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Total number of envelopes dropped, by reason.",
		}, []string{"reason"}),
		HandlerPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Total number of recovered subscriber panics.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of outbound requests, by path (live/fallback).",
		}, []string{"path"}),
		SecurityStops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_stops_total",
			Help:      "Total number of hard stops caused by security exceptions.",
		}),
	}
}

// Drop reasons.
const (
	ReasonNoSubscribers = "no_subscribers"
	ReasonExcluded      = "excluded_device"
)

// Request paths.
const (
	PathLive     = "live"
	PathFallback = "fallback"
)

func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

func (m *Metrics) IncConnect() {
	if m == nil {
		return
	}
	m.Connects.Inc()
}

func (m *Metrics) IncRestart() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
}

func (m *Metrics) IncFrame() {
	if m == nil {
		return
	}
	m.Frames.Inc()
}

func (m *Metrics) IncEnvelope(kind string) {
	if m == nil {
		return
	}
	m.Envelopes.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncHandlerPanic() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

func (m *Metrics) IncRequest(path string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(path).Inc()
}

func (m *Metrics) IncSecurityStop() {
	if m == nil {
		return
	}
	m.SecurityStops.Inc()
}
