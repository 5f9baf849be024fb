// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"github.com/arial-it/rlcf/internal/domain"
)

// TaskHandler is the per-task-type strategy for aggregating feedback and
// scoring individual contributions. Implementations must be stateless
// and safe for concurrent use; the engine resolves one handler per task
// and reuses it for aggregate, consistency, and correctness calls within
// a single aggregation cycle.
type TaskHandler interface {
	// Type returns the task type this handler serves.
	Type() domain.TaskType

	// Aggregate combines all feedback for a task into a consensus
	// answer plus the weighted-position map used for disagreement
	// measurement. Feedback missing the handler's required fields is
	// skipped; when nothing remains, the handler returns
	// domain.NoValidFeedback() rather than an error.
	Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate

	// Consistency scores how well one feedback's position agrees with
	// the aggregated result, in [0,1]. Missing fields degrade to 0.
	Consistency(fb domain.Feedback, agg domain.Aggregate) float64

	// Correctness scores one feedback against the task's ground truth,
	// in [0,1]. Absent ground truth or missing fields yield 0.
	Correctness(fb domain.Feedback, groundTruth map[string]any) float64

	// Position extracts the canonical position key from one feedback.
	// The second return is false when the feedback lacks the field.
	// Bias analysis and disagreement share this canonical form.
	Position(fb domain.Feedback) (string, bool)

	// FormatForExport produces training-data records for the given
	// format. Serialization is owned by external export collaborators.
	FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord
}

// HandlerRegistry resolves TaskHandler strategies by task type and
// allows extension with new types at runtime.
type HandlerRegistry interface {
	// Resolve returns the handler for the task type, or
	// domain.ErrUnsupportedTaskType when none is registered.
	Resolve(taskType domain.TaskType) (TaskHandler, error)

	// Register adds or replaces the handler for its own task type.
	Register(handler TaskHandler) error

	// SupportedTypes lists every registered task type.
	SupportedTypes() []domain.TaskType
}

// MetricsRecorder receives engine observations. Implementations must be
// safe for concurrent use; a no-op recorder is acceptable.
type MetricsRecorder interface {
	// RecordAggregation observes one completed aggregation cycle.
	RecordAggregation(taskType domain.TaskType, resultType domain.ResultType, disagreement float64)

	// RecordAuthorityUpdate observes one authority score recomputation.
	RecordAuthorityUpdate(score float64)

	// RecordBiasScore observes one computed bias signal.
	RecordBiasScore(biasType domain.BiasType, score float64)
}
