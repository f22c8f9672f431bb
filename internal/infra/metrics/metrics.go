package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smart-plug/internal/domain"
)

// Recorder counts control outcomes and times each attempt.
type Recorder struct {
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plug_set_power_outcomes_total",
			Help: "Count of power control attempts by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plug_set_power_duration_seconds",
			Help:    "Wall time of a power control attempt, including remote calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	reg.MustRegister(r.outcomes, r.duration)

	// Export every outcome from the start so rate() works on the first event.
	for _, o := range domain.Outcomes {
		r.outcomes.WithLabelValues(string(o))
	}

	return r
}

func (r *Recorder) Record(outcome domain.Outcome, elapsed time.Duration) {
	r.outcomes.WithLabelValues(string(outcome)).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
