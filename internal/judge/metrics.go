package judge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/codejudge/internal/domain"
)

// Metrics are the judge collectors. A nil *Metrics records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inflight    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codejudge",
			Subsystem: "judge",
			Name:      "submissions_total",
			Help:      "Judged submissions by language and verdict.",
		}, []string{"language", "verdict"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codejudge",
			Subsystem: "judge",
			Name:      "duration_seconds",
			Help:      "Time spent judging one submission, queueing excluded.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"language"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codejudge",
			Subsystem: "judge",
			Name:      "inflight",
			Help:      "Submissions currently holding a worker.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.submissions, m.duration, m.inflight)
	}

	return m
}

func (m *Metrics) observe(l domain.Language, v domain.Verdict, d time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(l), string(v)).Inc()
	m.duration.WithLabelValues(string(l)).Observe(d.Seconds())
}

func (m *Metrics) acquire() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) release() {
	if m != nil {
		m.inflight.Dec()
	}
}
