package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient"
	OutcomeNotFound     = "not_found"
	OutcomeExhausted    = "exhausted"
	OutcomeRecovered    = "recovered"
	OutcomeError        = "error"
)

var (
	// DecreaseCounter tracks decrease calls by strategy and outcome.
	DecreaseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_decrease_total",
		Help: "Total number of decrease operations",
	}, []string{"strategy", "outcome"})
	// ConflictCounter tracks detected write conflicts (failed CAS, version mismatch).
	ConflictCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_conflicts_total",
		Help: "Total number of write conflicts detected",
	}, []string{"strategy"})
	// RetryAttemptCounter tracks attempts made by the retry coordinator.
	RetryAttemptCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_retry_attempts_total",
		Help: "Total number of attempts made by the retry coordinator",
	})
	// RetryDelayHistogram observes backoff waits.
	RetryDelayHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_retry_delay_seconds",
		Help:    "Backoff delay before a retry",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers the stock metrics on the provided registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(DecreaseCounter, ConflictCounter, RetryAttemptCounter, RetryDelayHistogram)
}
