package leaderboard

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the leaderboard collectors. A nil *Metrics records nothing.
type Metrics struct {
	rebuilds    prometheus.Counter
	cacheErrors *prometheus.CounterVec
	fallbacks   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codejudge",
			Subsystem: "leaderboard",
			Name:      "cache_rebuilds_total",
			Help:      "Leaderboard caches rebuilt from the authoritative store.",
		}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codejudge",
			Subsystem: "leaderboard",
			Name:      "cache_errors_total",
			Help:      "Failed leaderboard cache operations.",
		}, []string{"op"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codejudge",
			Subsystem: "leaderboard",
			Name:      "store_reads_total",
			Help:      "Leaderboard pages served from the authoritative store because the cache failed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.rebuilds, m.cacheErrors, m.fallbacks)
	}

	return m
}

func (m *Metrics) rebuilt() {
	if m != nil {
		m.rebuilds.Inc()
	}
}

func (m *Metrics) cacheFailed(op string) {
	if m != nil {
		m.cacheErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) fellBack() {
	if m != nil {
		m.fallbacks.Inc()
	}
}
