package textgen

import "github.com/prometheus/client_golang/prometheus"

var (
	tokensGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnid",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Completion tokens produced",
		},
		[]string{"model"},
	)

	promptTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnid",
			Subsystem: "generation",
			Name:      "prompt_tokens_total",
			Help:      "Prompt tokens by source (evaluated or cached)",
		},
		[]string{"model", "source"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnid",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Time from first evaluated token to finalization",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model", "finish_reason"},
	)

	generationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnid",
			Subsystem: "generation",
			Name:      "failures_total",
			Help:      "Generations aborted by a runtime error or cancellation",
		},
		[]string{"model", "reason"},
	)
)

func init() {
	prometheus.MustRegister(tokensGenerated, promptTokens, generationDuration, generationFailures)
}
