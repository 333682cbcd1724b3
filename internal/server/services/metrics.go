package services

import "github.com/prometheus/client_golang/prometheus"

// Registration modes.
const (
	ModeAtomic   = "atomic"
	ModeFallback = "fallback"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registrations       *prometheus.CounterVec
	registrarFallbacks  prometheus.Counter
	tierChanges         *prometheus.CounterVec
	referralsDropped    *prometheus.CounterVec
	invariantViolations prometheus.Counter
	sweepDeleted        prometheus.Counter
	sweepFailures       prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiergate",
			Name:      "registrations_total",
			Help:      "Installations registered, by sequence assignment mode.",
		}, []string{"mode"}),
		registrarFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiergate",
			Name:      "registrar_fallback_total",
			Help:      "Sequence numbers assigned with the non-atomic read-then-write fallback.",
		}),
		tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiergate",
			Name:      "tier_changes_total",
			Help:      "Current tier transitions, by reason and direction.",
		}, []string{"reason", "direction"}),
		referralsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiergate",
			Name:      "referrals_dropped_total",
			Help:      "Referral attributions dropped, by reason.",
		}, []string{"reason"}),
		invariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiergate",
			Name:      "tier_invariant_violations_total",
			Help:      "Resolutions that would have demoted a linked user below its locked tier.",
		}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiergate",
			Name:      "retention_deleted_total",
			Help:      "Stale anonymous records deleted by the retention sweeper.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiergate",
			Name:      "retention_failures_total",
			Help:      "Stale records the retention sweeper failed to delete.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.registrations, m.registrarFallbacks, m.tierChanges, m.referralsDropped,
			m.invariantViolations, m.sweepDeleted, m.sweepFailures,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}
