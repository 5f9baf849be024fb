// Package metrics implements the MetricsRecorder port on Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// Recorder publishes engine observations as Prometheus metrics.
type Recorder struct {
	aggregations     *prometheus.CounterVec
	disagreement     prometheus.Histogram
	authorityUpdates prometheus.Counter
	authorityScore   prometheus.Histogram
	biasScores       *prometheus.HistogramVec
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates a Recorder and registers its collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rlcf",
			Name:      "aggregations_total",
			Help:      "Completed aggregation cycles by task type and result type.",
		}, []string{"task_type", "result_type"}),
		disagreement: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rlcf",
			Name:      "disagreement_score",
			Help:      "Normalized disagreement scores across aggregation cycles.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		authorityUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rlcf",
			Name:      "authority_updates_total",
			Help:      "Authority score recomputations.",
		}),
		authorityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rlcf",
			Name:      "authority_score",
			Help:      "Distribution of recomputed authority scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		biasScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rlcf",
			Name:      "bias_score",
			Help:      "Computed bias signal scores by type.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"bias_type"}),
	}

	reg.MustRegister(r.aggregations, r.disagreement, r.authorityUpdates, r.authorityScore, r.biasScores)
	return r
}

func (r *Recorder) RecordAggregation(taskType domain.TaskType, resultType domain.ResultType, disagreement float64) {
	r.aggregations.WithLabelValues(string(taskType), string(resultType)).Inc()
	r.disagreement.Observe(disagreement)
}

func (r *Recorder) RecordAuthorityUpdate(score float64) {
	r.authorityUpdates.Inc()
	r.authorityScore.Observe(score)
}

func (r *Recorder) RecordBiasScore(biasType domain.BiasType, score float64) {
	r.biasScores.WithLabelValues(string(biasType)).Observe(score)
}

// Nop is a MetricsRecorder that discards all observations.
type Nop struct{}

var _ ports.MetricsRecorder = Nop{}

func (Nop) RecordAggregation(domain.TaskType, domain.ResultType, float64) {}
func (Nop) RecordAuthorityUpdate(float64)                                 {}
func (Nop) RecordBiasScore(domain.BiasType, float64)                      {}
