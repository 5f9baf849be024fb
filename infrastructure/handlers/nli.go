package handlers

import (
	"github.com/arial-it/rlcf/internal/domain"
)

// NLIHandler aggregates chosen entailment labels for natural language
// inference tasks.
type NLIHandler struct{}

// NewNLIHandler creates the handler for NLI tasks.
func NewNLIHandler() *NLIHandler { return &NLIHandler{} }

func (h *NLIHandler) Type() domain.TaskType { return domain.TaskNLI }

func (h *NLIHandler) extract(fb domain.Feedback) (contribution, bool) {
	return discreteContribution(fb, fieldChosenLabel)
}

func (h *NLIHandler) Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate {
	return aggregateBy(feedbacks, h.extract)
}

func (h *NLIHandler) Consistency(fb domain.Feedback, agg domain.Aggregate) float64 {
	return exactConsistency(fb, agg, h.extract)
}

func (h *NLIHandler) Correctness(fb domain.Feedback, groundTruth map[string]any) float64 {
	return discreteCorrectness(fb, groundTruth, fieldChosenLabel, "label")
}

func (h *NLIHandler) Position(fb domain.Feedback) (string, bool) {
	return positionOf(fb, h.extract)
}

func (h *NLIHandler) FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	return exportRecords(task, agg, format)
}
