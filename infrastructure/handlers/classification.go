package handlers

import (
	"github.com/arial-it/rlcf/internal/domain"
)

// ClassificationHandler aggregates validated label sets. Positions are
// order-insensitive: two evaluators choosing the same labels in a
// different order share one position.
type ClassificationHandler struct{}

// NewClassificationHandler creates the handler for classification tasks.
func NewClassificationHandler() *ClassificationHandler { return &ClassificationHandler{} }

func (h *ClassificationHandler) Type() domain.TaskType { return domain.TaskClassification }

func (h *ClassificationHandler) extract(fb domain.Feedback) (contribution, bool) {
	labels, ok := fb.StringSliceField(fieldValidatedLabels)
	if !ok || len(labels) == 0 {
		return contribution{}, false
	}
	return contribution{
		key:    labelKey(labels),
		answer: labels,
		weight: fb.Author.AuthorityScore,
	}, true
}

func (h *ClassificationHandler) Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate {
	return aggregateBy(feedbacks, h.extract)
}

func (h *ClassificationHandler) Consistency(fb domain.Feedback, agg domain.Aggregate) float64 {
	return exactConsistency(fb, agg, h.extract)
}

func (h *ClassificationHandler) Correctness(fb domain.Feedback, groundTruth map[string]any) float64 {
	truth, ok := groundTruthStrings(groundTruth, "labels")
	if !ok {
		return 0
	}
	labels, ok := fb.StringSliceField(fieldValidatedLabels)
	if !ok {
		return 0
	}
	if labelKey(labels) == labelKey(truth) {
		return 1
	}
	return 0
}

func (h *ClassificationHandler) Position(fb domain.Feedback) (string, bool) {
	return positionOf(fb, h.extract)
}

func (h *ClassificationHandler) FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	return exportRecords(task, agg, format)
}
