package handlers

import (
	"github.com/arial-it/rlcf/internal/domain"
)

// PredictionHandler aggregates chosen case outcomes. Outcomes are a
// closed discrete set, so positions and scoring are exact-match.
type PredictionHandler struct{}

// NewPredictionHandler creates the handler for outcome-prediction tasks.
func NewPredictionHandler() *PredictionHandler { return &PredictionHandler{} }

func (h *PredictionHandler) Type() domain.TaskType { return domain.TaskPrediction }

func (h *PredictionHandler) extract(fb domain.Feedback) (contribution, bool) {
	return discreteContribution(fb, fieldChosenOutcome)
}

func (h *PredictionHandler) Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate {
	return aggregateBy(feedbacks, h.extract)
}

func (h *PredictionHandler) Consistency(fb domain.Feedback, agg domain.Aggregate) float64 {
	return exactConsistency(fb, agg, h.extract)
}

func (h *PredictionHandler) Correctness(fb domain.Feedback, groundTruth map[string]any) float64 {
	return discreteCorrectness(fb, groundTruth, fieldChosenOutcome, "outcome")
}

func (h *PredictionHandler) Position(fb domain.Feedback) (string, bool) {
	return positionOf(fb, h.extract)
}

func (h *PredictionHandler) FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	return exportRecords(task, agg, format)
}

// discreteContribution extracts a single-valued discrete position at
// full authority weight.
func discreteContribution(fb domain.Feedback, field string) (contribution, bool) {
	value, ok := fb.Field(field)
	if !ok || value == "" {
		return contribution{}, false
	}
	return contribution{
		key:    value,
		answer: value,
		weight: fb.Author.AuthorityScore,
	}, true
}

// discreteCorrectness is the exact-match score against a ground-truth
// string value.
func discreteCorrectness(fb domain.Feedback, groundTruth map[string]any, field, truthKey string) float64 {
	truth, ok := groundTruthString(groundTruth, truthKey)
	if !ok {
		return 0
	}
	value, ok := fb.Field(field)
	if !ok {
		return 0
	}
	if value == truth {
		return 1
	}
	return 0
}
