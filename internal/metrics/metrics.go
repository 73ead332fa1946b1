package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Gate holds the collectors for the recognition-to-decision pipeline. A nil
// *Gate records nothing.
type Gate struct {
	decisions     *prometheus.CounterVec
	distance      prometheus.Histogram
	duration      prometheus.Histogram
	persistFails  prometheus.Counter
	conflictRetry prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Gate {
	g := &Gate{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusgate",
			Name:      "decisions_total",
			Help:      "Gate decisions by status and reason.",
		}, []string{"status", "reason"}),
		distance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "campusgate",
			Name:      "match_distance",
			Help:      "Descriptor distance of matched identities.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "campusgate",
			Name:      "decide_duration_seconds",
			Help:      "Time spent deciding a scan, including the write.",
			Buckets:   prometheus.DefBuckets,
		}),
		persistFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campusgate",
			Name:      "persistence_failures_total",
			Help:      "Scans whose decision could not be stored.",
		}),
		conflictRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campusgate",
			Name:      "record_conflicts_total",
			Help:      "Attendance writes retried after another gate changed the record.",
		}),
	}
	if reg != nil {
		reg.MustRegister(g.decisions, g.distance, g.duration, g.persistFails, g.conflictRetry)
	}
	return g
}

// Decision counts one decision.
func (g *Gate) Decision(status, reason string) {
	if g == nil {
		return
	}
	g.decisions.WithLabelValues(status, reason).Inc()
}

// Matched observes the distance of a match.
func (g *Gate) Matched(distance float64) {
	if g == nil {
		return
	}
	g.distance.Observe(distance)
}

// Observe records how long a scan took.
func (g *Gate) Observe(start time.Time) {
	if g == nil {
		return
	}
	g.duration.Observe(time.Since(start).Seconds())
}

// PersistenceFailure counts a lost write.
func (g *Gate) PersistenceFailure() {
	if g == nil {
		return
	}
	g.persistFails.Inc()
}

// Conflict counts a retried write.
func (g *Gate) Conflict() {
	if g == nil {
		return
	}
	g.conflictRetry.Inc()
}
