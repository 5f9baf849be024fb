package handlers

import (
	"strings"

	"github.com/arial-it/rlcf/internal/domain"
)

// NERHandler aggregates validated entity-tag sequences. Tags are
// positional: the i-th tag labels the i-th token, so ordering is part
// of the position key and scoring compares index by index.
type NERHandler struct{}

// NewNERHandler creates the handler for entity-recognition tasks.
func NewNERHandler() *NERHandler { return &NERHandler{} }

func (h *NERHandler) Type() domain.TaskType { return domain.TaskNER }

func (h *NERHandler) extract(fb domain.Feedback) (contribution, bool) {
	tags, ok := fb.StringSliceField(fieldValidatedTags)
	if !ok || len(tags) == 0 {
		return contribution{}, false
	}
	return contribution{
		key:    strings.Join(tags, "|"),
		answer: tags,
		weight: fb.Author.AuthorityScore,
	}, true
}

func (h *NERHandler) Aggregate(task domain.Task, feedbacks []domain.Feedback) domain.Aggregate {
	return aggregateBy(feedbacks, h.extract)
}

// Consistency is the fraction of tag positions matching the consensus
// sequence, over the longer of the two sequences.
func (h *NERHandler) Consistency(fb domain.Feedback, agg domain.Aggregate) float64 {
	tags, ok := fb.StringSliceField(fieldValidatedTags)
	if !ok || !agg.OK {
		return 0
	}
	consensus, ok := agg.Consensus.([]string)
	if !ok {
		return 0
	}
	return tagOverlap(tags, consensus)
}

func (h *NERHandler) Correctness(fb domain.Feedback, groundTruth map[string]any) float64 {
	truth, ok := groundTruthStrings(groundTruth, "tags")
	if !ok {
		return 0
	}
	tags, ok := fb.StringSliceField(fieldValidatedTags)
	if !ok {
		return 0
	}
	return tagOverlap(tags, truth)
}

func (h *NERHandler) Position(fb domain.Feedback) (string, bool) {
	return positionOf(fb, h.extract)
}

func (h *NERHandler) FormatForExport(task domain.Task, feedbacks []domain.Feedback, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	return exportRecords(task, agg, format)
}

// tagOverlap is the positional match fraction of two tag sequences,
// normalized by the longer sequence.
func tagOverlap(a, b []string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	shortest := len(a)
	if len(b) < shortest {
		shortest = len(b)
	}
	matches := 0
	for i := 0; i < shortest; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(longest)
}
