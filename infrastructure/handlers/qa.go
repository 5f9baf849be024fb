package handlers

import (
	"github.com/arial-it/rlcf/internal/domain"
)

// QAHandler aggregates validated free-text answers. Positions compare
// on the normalized answer text. Feedback must carry both the answer
// and a correct/incorrect position; any position other than correct
// keeps the answer in the population at a heavily reduced weight
// rather than dropping it.
type QAHandler struct{}

// NewQAHandler creates the handler for question-answering tasks.
func NewQAHandler() *QAHandler { return &QAHandler{} }

func (h *QAHandler) Type() domain.TaskType { return domain.TaskQA }

func (h *QAHandler) extract(fb domain.Feedback) (contribution, bool) {
	answer, ok := fb.Field(fieldValidatedAnswer)
	if !ok || normalizeText(answer) == "" {
		return contribution{}, false
	}
	pos, ok := fb.Field(fieldAnswerPosition)
	if !ok {
		return contribution{}, false
	}
	weight := fb.Author.AuthorityScore
	if pos != positionCorrect {
		weight *= incorrectWeightFactor
	}
	return contribution{
		key:    normalizeText(answer),
		answer: answer,
		weight: weight,
	}, true
}

func (h *QAHandler) Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate {
	return aggregateBy(feedbacks, h.extract)
}

// Consistency is graded rather than binary: free-text answers that
// paraphrase the consensus still score high.
func (h *QAHandler) Consistency(fb domain.Feedback, agg domain.Aggregate) float64 {
	answer, ok := fb.Field(fieldValidatedAnswer)
	if !ok || !agg.OK {
		return 0
	}
	consensus, ok := agg.Consensus.(string)
	if !ok {
		return 0
	}
	return textSimilarity(answer, consensus)
}

func (h *QAHandler) Correctness(fb domain.Feedback, groundTruth map[string]any) float64 {
	truth, ok := groundTruthString(groundTruth, "answer")
	if !ok {
		return 0
	}
	answer, ok := fb.Field(fieldValidatedAnswer)
	if !ok {
		return 0
	}
	return textSimilarity(answer, truth)
}

func (h *QAHandler) Position(fb domain.Feedback) (string, bool) {
	return positionOf(fb, h.extract)
}

func (h *QAHandler) FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	return exportRecords(task, agg, format)
}
