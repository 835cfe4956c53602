package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Turn metrics
	Turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_turns_total",
			Help: "Total number of conversation turns",
		},
		[]string{"agent", "status"}, // status: success|error|save_error
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finbuddy_turn_duration_seconds",
			Help:    "Turn duration in seconds, lock wait excluded",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"agent"},
	)

	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_phase_transitions_total",
			Help: "Committed phase transitions",
		},
		[]string{"from", "to"},
	)

	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finbuddy_session_lock_wait_seconds",
			Help:    "Time spent waiting for the per-session lock",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
	)

	// Model metrics
	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_model_calls_total",
			Help: "Total number of chat model attempts",
		},
		[]string{"model", "status"}, // status: success|error|retry|rate_limited
	)

	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finbuddy_model_latency_seconds",
			Help:    "Chat model attempt latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	ModelTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_model_tokens_total",
			Help: "Total tokens used by chat models",
		},
		[]string{"model", "type"}, // type: input|output
	)

	ModelCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_model_cost_usd",
			Help: "Total estimated model cost in USD",
		},
		[]string{"model"},
	)

	// Agent metrics
	ExtractionFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_extraction_fallbacks_total",
			Help: "Extractions served by the keyword fallback",
		},
		[]string{"reason"},
	)

	Analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_analyses_total",
			Help: "Analysis agent runs",
		},
		[]string{"status"}, // status: success|degraded|failed|refused
	)

	// Store metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbuddy_db_queries_total",
			Help: "Total number of SQL store operations",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finbuddy_db_query_duration_seconds",
			Help:    "SQL store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Turns)
		prometheus.MustRegister(TurnDuration)
		prometheus.MustRegister(PhaseTransitions)
		prometheus.MustRegister(LockWait)

		prometheus.MustRegister(ModelCalls)
		prometheus.MustRegister(ModelLatency)
		prometheus.MustRegister(ModelTokens)
		prometheus.MustRegister(ModelCost)

		prometheus.MustRegister(ExtractionFallbacks)
		prometheus.MustRegister(Analyses)

		prometheus.MustRegister(DBQueries)
		prometheus.MustRegister(DBQueryDuration)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error, failed string) string {
	if err != nil {
		return failed
	}
	return "success"
}

func RecordTurn(agent string, duration time.Duration, status string) {
	Turns.WithLabelValues(agent, status).Inc()
	TurnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

func RecordPhaseTransition(from, to string) {
	if from == to {
		return
	}
	PhaseTransitions.WithLabelValues(from, to).Inc()
}

func RecordLockWait(d time.Duration) {
	LockWait.Observe(d.Seconds())
}

func RecordModelCall(model string, latency time.Duration, err error) {
	ModelCalls.WithLabelValues(model, status(err, "error")).Inc()
	ModelLatency.WithLabelValues(model).Observe(latency.Seconds())
}

func RecordModelRetry(model string) {
	ModelCalls.WithLabelValues(model, "retry").Inc()
}

func RecordRateLimited(model string) {
	ModelCalls.WithLabelValues(model, "rate_limited").Inc()
}

func RecordModelUsage(model string, promptTokens, completionTokens int, costUSD float64) {
	ModelTokens.WithLabelValues(model, "input").Add(float64(promptTokens))
	ModelTokens.WithLabelValues(model, "output").Add(float64(completionTokens))
	if costUSD > 0 {
		ModelCost.WithLabelValues(model).Add(costUSD)
	}
}

func RecordExtractionFallback(reason string) {
	ExtractionFallbacks.WithLabelValues(reason).Inc()
}

func RecordAnalysis(status string) {
	Analyses.WithLabelValues(status).Inc()
}

func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(operation, status(err, "error")).Inc()
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
