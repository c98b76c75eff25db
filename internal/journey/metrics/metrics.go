package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the journey module.
type Metrics struct {
	Mutations         *prometheus.CounterVec
	MutationDuration  *prometheus.HistogramVec
	WriteConflicts    prometheus.Counter
	Decisions         *prometheus.CounterVec
	SyncWarnings      prometheus.Counter
	StreamSubscribers prometheus.Gauge
	StreamDropped     prometheus.Counter
}

// New registers the journey metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_journey_mutations_total",
			Help: "Journey mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		MutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_journey_mutation_duration_seconds",
			Help:    "Duration of journey mutations including conflict retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		WriteConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_journey_write_conflicts_total",
			Help: "Compare-and-swap conflicts that forced a reload and retry",
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_journey_decisions_total",
			Help: "Admin decisions applied by outcome and source",
		}, []string{"outcome", "source"}),
		SyncWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_journey_sync_warnings_total",
			Help: "Dependent writes that failed after the journey was saved",
		}),
		StreamSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_journey_stream_subscribers",
			Help: "Open realtime journey subscriptions on this instance",
		}),
		StreamDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_journey_stream_dropped_total",
			Help: "Journey documents replaced before a slow subscriber read them",
		}),
	}
}

// ObserveMutation records the outcome and duration of a mutation.
// Call with time.Now() taken at the start of the operation.
func (m *Metrics) ObserveMutation(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Mutations.WithLabelValues(operation, outcome).Inc()
	m.MutationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
