package assoc

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional set of Prometheus collectors. A nil *Metrics is
// a documented no-op on every method below, so wiring a collector is
// opt-in: the core has no mandatory runtime dependency on having a
// registry around.
type Metrics struct {
	pdusSent          prometheus.Counter
	pdusReceived      prometheus.Counter
	activeAssociations prometheus.Gauge
	operationsInFlight prometheus.Gauge
}

// NewMetrics registers a standard set of association-engine collectors
// against reg and returns a Metrics wrapping them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pdusSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dicomnet",
			Subsystem: "assoc",
			Name:      "pdus_sent_total",
			Help:      "Total Upper Layer PDUs written to the wire.",
		}),
		pdusReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dicomnet",
			Subsystem: "assoc",
			Name:      "pdus_received_total",
			Help:      "Total Upper Layer PDUs read from the wire.",
		}),
		activeAssociations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dicomnet",
			Subsystem: "assoc",
			Name:      "active",
			Help:      "Currently negotiated, non-terminated associations.",
		}),
		operationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dicomnet",
			Subsystem: "assoc",
			Name:      "operations_in_flight",
			Help:      "Outstanding DIMSE requests awaiting a final response, across all associations.",
		}),
	}
	reg.MustRegister(m.pdusSent, m.pdusReceived, m.activeAssociations, m.operationsInFlight)
	return m
}

func (m *Metrics) pduSent() {
	if m == nil {
		return
	}
	m.pdusSent.Inc()
}

func (m *Metrics) pduReceived() {
	if m == nil {
		return
	}
	m.pdusReceived.Inc()
}

func (m *Metrics) associationOpened() {
	if m == nil {
		return
	}
	m.activeAssociations.Inc()
}

func (m *Metrics) associationClosed() {
	if m == nil {
		return
	}
	m.activeAssociations.Dec()
}

func (m *Metrics) operationStarted() {
	if m == nil {
		return
	}
	m.operationsInFlight.Inc()
}

func (m *Metrics) operationFinished() {
	if m == nil {
		return
	}
	m.operationsInFlight.Dec()
}
