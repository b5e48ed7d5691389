package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the connection lifecycle and event flow.
type Metrics struct {
	connState      prometheus.Gauge
	Opens          prometheus.Counter
	Retries        prometheus.Counter
	Failures       prometheus.Counter
	EventsReceived *prometheus.CounterVec
}

// NewMetrics registers the realtime collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connState: f.NewGauge(prometheus.GaugeOpts{
			Name: "jobwire_connection_state",
			Help: "Connection lifecycle state (0=closed, 1=opening, 2=open, -1=failed).",
		}),
		Opens: f.NewCounter(prometheus.CounterOpts{
			Name: "jobwire_connection_opens_total",
			Help: "Successful connection opens.",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "jobwire_connection_retries_total",
			Help: "Failed open attempts that were retried.",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "jobwire_connection_failures_total",
			Help: "Retry budgets exhausted (terminal failures).",
		}),
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jobwire_events_received_total",
			Help: "Realtime events dispatched to subscribers.",
		}, []string{"event"}),
	}
}

func (m *Metrics) setState(s State) {
	switch s {
	case StateClosed:
		m.connState.Set(0)
	case StateOpening:
		m.connState.Set(1)
	case StateOpen:
		m.connState.Set(2)
	case StateFailed:
		m.connState.Set(-1)
	}
}
