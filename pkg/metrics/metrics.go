// Package metrics provides Prometheus metrics for the workflow execution engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// synthesisAttemptsTotal counts calls to the completion service.
	// Labels:
	//   - outcome: "success", "parse_error", "completion_error"
	synthesisAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agendaflow_synthesis_attempts_total",
			Help: "Total number of plan synthesis attempts",
		},
		[]string{"outcome"},
	)

	synthesisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agendaflow_synthesis_duration_seconds",
			Help:    "Duration of plan synthesis including the retry",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// itemsRepairedTotal counts synthesized items dropped before evaluation.
	itemsRepairedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agendaflow_synthesis_items_dropped_total",
			Help: "Total number of synthesized agenda items dropped by repair",
		},
	)

	// evaluationsTotal counts rubric evaluation passes.
	// Labels:
	//   - valid: "true" when no hard rubric failed
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agendaflow_evaluations_total",
			Help: "Total number of rubric evaluation passes",
		},
		[]string{"valid"},
	)

	aggregateScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agendaflow_evaluation_aggregate_score",
			Help:    "Aggregate rubric score of evaluated candidates",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// transitionsTotal counts execution state transitions.
	// Labels:
	//   - from, to: execution statuses
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agendaflow_execution_transitions_total",
			Help: "Total number of execution status transitions",
		},
		[]string{"from", "to"},
	)

	// contextFetchesTotal counts collaborator context fetches.
	// Labels:
	//   - source: "calendar", "wellness", "financial", "pursuits"
	//   - status: "ok", "empty", "error"
	contextFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agendaflow_context_fetches_total",
			Help: "Total number of context provider fetches",
		},
		[]string{"source", "status"},
	)
)

func init() {
	prometheus.MustRegister(synthesisAttemptsTotal)
	prometheus.MustRegister(synthesisDuration)
	prometheus.MustRegister(itemsRepairedTotal)
	prometheus.MustRegister(evaluationsTotal)
	prometheus.MustRegister(aggregateScore)
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(contextFetchesTotal)
}

func RecordSynthesisAttempt(outcome string) {
	synthesisAttemptsTotal.WithLabelValues(outcome).Inc()
}

func ObserveSynthesisDuration(seconds float64) {
	synthesisDuration.Observe(seconds)
}

func RecordItemsDropped(count int) {
	itemsRepairedTotal.Add(float64(count))
}

// RecordEvaluation records one evaluation pass and its aggregate score.
func RecordEvaluation(valid bool, score float64) {
	label := "false"
	if valid {
		label = "true"
	}

	evaluationsTotal.WithLabelValues(label).Inc()
	aggregateScore.Observe(score)
}

func RecordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordContextFetch(source, status string) {
	contextFetchesTotal.WithLabelValues(source, status).Inc()
}
