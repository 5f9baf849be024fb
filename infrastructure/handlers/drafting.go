package handlers

import (
	"github.com/arial-it/rlcf/internal/domain"
)

// DraftingHandler aggregates revised legal drafts. The better/worse
// verdict on the generated draft scales the revision's weight the same
// way summarization's good/bad rating does.
type DraftingHandler struct{}

// NewDraftingHandler creates the handler for drafting tasks.
func NewDraftingHandler() *DraftingHandler { return &DraftingHandler{} }

func (h *DraftingHandler) Type() domain.TaskType { return domain.TaskDrafting }

func (h *DraftingHandler) extract(fb domain.Feedback) (contribution, bool) {
	return revisionContribution(fb, fieldRevisedTarget, fieldSummaryRating, ratingWorse)
}

func (h *DraftingHandler) Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate {
	return aggregateBy(feedbacks, h.extract)
}

func (h *DraftingHandler) Consistency(fb domain.Feedback, agg domain.Aggregate) float64 {
	return revisionConsistency(fb, agg, fieldRevisedTarget)
}

func (h *DraftingHandler) Correctness(fb domain.Feedback, groundTruth map[string]any) float64 {
	return revisionCorrectness(fb, groundTruth, fieldRevisedTarget, "target")
}

func (h *DraftingHandler) Position(fb domain.Feedback) (string, bool) {
	return positionOf(fb, h.extract)
}

func (h *DraftingHandler) FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	return exportRecords(task, agg, format)
}
