// Package metrics exposes the Prometheus collectors discovery and
// liveliness track: live participant counts, pending server-side
// match/demise queue depth, and liveliness transitions. Exporting
// them over HTTP is the caller's job (the node package's metrics
// service serves them at /metrics on the configured listen address).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rtps_discovery"

// Collectors groups the gauges and counters every engine updates.
// A single instance is shared across pdp/edp/wlp within one node.
type Collectors struct {
	LiveParticipants   prometheus.Gauge
	LeaseExpirations   prometheus.Counter
	PendingEDPMatches  prometheus.Gauge
	PendingDemises     prometheus.Gauge
	LivelinessLost     prometheus.Counter
	LivelinessRecovered prometheus.Counter
	MatchedEndpoints   prometheus.Gauge
}

// New registers and returns a Collectors against reg. Pass
// prometheus.DefaultRegisterer unless the caller needs isolation
// (e.g. in tests, a fresh prometheus.NewRegistry()).
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		LiveParticipants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_participants",
			Help: "Number of participants in the participant proxy store, the local participant included.",
		}),
		LeaseExpirations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lease_expirations_total",
			Help: "Number of participant leases that have expired.",
		}),
		PendingEDPMatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_edp_matches",
			Help: "Number of EDP matches queued for propagation to other servers.",
		}),
		PendingDemises: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_demises",
			Help: "Number of instance handles queued for removal from writer history.",
		}),
		LivelinessLost: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "liveliness_lost_total",
			Help: "Number of writers whose liveliness was lost.",
		}),
		LivelinessRecovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "liveliness_recovered_total",
			Help: "Number of liveliness changes in which a matched writer became alive, first assertions included.",
		}),
		MatchedEndpoints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "matched_endpoints",
			Help: "Number of currently matched writer/reader endpoint pairs.",
		}),
	}
}
