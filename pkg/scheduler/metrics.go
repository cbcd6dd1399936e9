package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the scheduler's Prometheus instruments (SPEC_FULL.md §4.6
// — observability the teacher's original core has no room for, wired
// from the rest of the retrieval pack rather than the teacher itself).
type Metrics struct {
	MessagesDispatched prometheus.Counter
	ResponsesSent      prometheus.Counter
	MessagesDropped    prometheus.Counter
	Yields             prometheus.Counter
	PromisesPending    prometheus.Gauge
}

// NewMetrics registers the scheduler's instruments on reg. Passing a
// fresh prometheus.NewRegistry() per-test keeps tests from colliding
// on the global default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		MessagesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actorvm_messages_dispatched_total",
			Help: "Number of messages popped from a vat's inbox and dispatched.",
		}),
		ResponsesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actorvm_responses_sent_total",
			Help: "Number of Response messages emitted after a Request completed without yielding.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actorvm_messages_dropped_total",
			Help: "Number of messages or resumed computations dropped after an error.",
		}),
		Yields: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actorvm_yields_total",
			Help: "Number of times execution suspended on an unresolved Await.",
		}),
		PromisesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "actorvm_promises_pending",
			Help: "Number of promises created but not yet resolved, summed across tracked vats.",
		}),
	}
	reg.MustRegister(m.MessagesDispatched, m.ResponsesSent, m.MessagesDropped, m.Yields, m.PromisesPending)
	return m
}
