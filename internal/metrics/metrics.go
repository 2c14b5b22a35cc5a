// Package metrics defines the Prometheus collectors exposed by the proxy
// core, giving operators visibility into message forwarding, backend
// health and duplicate-id rejections that OpenLDAP's lloadd otherwise
// only surfaces through cn=monitor.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the proxy's collectors. Callers register it once
// against a prometheus.Registerer (or the default registry) at startup.
type Metrics struct {
	OperationsForwarded *prometheus.CounterVec
	OperationsInFlight  prometheus.Gauge
	DuplicateMsgID      prometheus.Counter
	BackendSelectFailed prometheus.Counter
	EntryModifications  *prometheus.CounterVec
}

// New constructs a Metrics bundle with its collectors created but not
// yet registered.
func New() *Metrics {
	return &Metrics{
		OperationsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lloadd",
			Subsystem: "proxy",
			Name:      "operations_forwarded_total",
			Help:      "Number of LDAP operations forwarded to an upstream, by protocolOp tag name.",
		}, []string{"operation"}),

		OperationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lloadd",
			Subsystem: "proxy",
			Name:      "operations_in_flight",
			Help:      "Number of operations currently awaiting a response from an upstream.",
		}),

		DuplicateMsgID: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lloadd",
			Subsystem: "proxy",
			Name:      "duplicate_message_id_total",
			Help:      "Number of requests rejected because their message id collided with one already in flight.",
		}),

		BackendSelectFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lloadd",
			Subsystem: "proxy",
			Name:      "backend_select_failures_total",
			Help:      "Number of operations that could not be dispatched because no upstream connection was available.",
		}),

		EntryModifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lloadd",
			Subsystem: "directory",
			Name:      "entry_modifications_total",
			Help:      "Number of entry modification primitives applied, by operation (add, delete, replace, increment) and outcome.",
		}, []string{"operation", "outcome"}),
	}
}

// MustRegister registers every collector in m against reg, panicking on
// a registration error (duplicate collector), mirroring
// prometheus.MustRegister's intended use at process startup.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.OperationsForwarded,
		m.OperationsInFlight,
		m.DuplicateMsgID,
		m.BackendSelectFailed,
		m.EntryModifications,
	)
}
