package handlers

import (
	"github.com/arial-it/rlcf/internal/domain"
)

// SummarizationHandler aggregates revised summaries. The evaluator's
// good/bad rating of the original output scales their authority: a
// revision attached to a "bad" verdict carries half weight since the
// evaluator is overriding rather than endorsing.
type SummarizationHandler struct{}

// NewSummarizationHandler creates the handler for summarization tasks.
func NewSummarizationHandler() *SummarizationHandler { return &SummarizationHandler{} }

func (h *SummarizationHandler) Type() domain.TaskType { return domain.TaskSummarization }

func (h *SummarizationHandler) extract(fb domain.Feedback) (contribution, bool) {
	return revisionContribution(fb, fieldRevisedSummary, fieldSummaryRating, ratingBad)
}

func (h *SummarizationHandler) Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate {
	return aggregateBy(feedbacks, h.extract)
}

func (h *SummarizationHandler) Consistency(fb domain.Feedback, agg domain.Aggregate) float64 {
	return revisionConsistency(fb, agg, fieldRevisedSummary)
}

func (h *SummarizationHandler) Correctness(fb domain.Feedback, groundTruth map[string]any) float64 {
	return revisionCorrectness(fb, groundTruth, fieldRevisedSummary, "summary")
}

func (h *SummarizationHandler) Position(fb domain.Feedback) (string, bool) {
	return positionOf(fb, h.extract)
}

func (h *SummarizationHandler) FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	return exportRecords(task, agg, format)
}

// revisionContribution extracts a revised-text position with the
// downvote weight factor applied when the rating matches downRating.
func revisionContribution(fb domain.Feedback, textField, ratingField, downRating string) (contribution, bool) {
	text, ok := fb.Field(textField)
	if !ok || normalizeText(text) == "" {
		return contribution{}, false
	}
	weight := fb.Author.AuthorityScore
	if rating, ok := fb.Field(ratingField); ok && rating == downRating {
		weight *= downvoteWeightFactor
	}
	return contribution{
		key:    normalizeText(text),
		answer: text,
		weight: weight,
	}, true
}

// revisionConsistency scores a revised text against the consensus
// revision by similarity.
func revisionConsistency(fb domain.Feedback, agg domain.Aggregate, textField string) float64 {
	text, ok := fb.Field(textField)
	if !ok || !agg.OK {
		return 0
	}
	consensus, ok := agg.Consensus.(string)
	if !ok {
		return 0
	}
	return textSimilarity(text, consensus)
}

// revisionCorrectness scores a revised text against the ground-truth
// reference text by similarity.
func revisionCorrectness(fb domain.Feedback, groundTruth map[string]any, textField, truthKey string) float64 {
	truth, ok := groundTruthString(groundTruth, truthKey)
	if !ok {
		return 0
	}
	text, ok := fb.Field(textField)
	if !ok {
		return 0
	}
	return textSimilarity(text, truth)
}
