// Package handlers provides the per-task-type aggregation strategies.
// Each handler turns a feedback population into authority-weighted
// positions, scores individual contributions, and shapes training-data
// exports. Handlers are stateless and registered once at startup.
package handlers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arial-it/rlcf/internal/domain"
)

// Feedback payload keys consumed by the built-in handlers.
const (
	fieldValidatedLabels = "validated_labels"
	fieldValidatedAnswer = "validated_answer"
	fieldAnswerPosition  = "position"
	fieldRevisedSummary  = "revised_summary"
	fieldSummaryRating   = "rating"
	fieldChosenOutcome   = "chosen_outcome"
	fieldChosenLabel     = "chosen_label"
	fieldValidatedTags   = "validated_tags"
	fieldRevisedTarget   = "revised_target"
)

// Self-assessed answer positions and revision ratings, and the weight
// multipliers they apply to the author's authority.
const (
	positionCorrect = "correct"

	ratingGood   = "good"
	ratingBad    = "bad"
	ratingBetter = "better"
	ratingWorse  = "worse"

	incorrectWeightFactor = 0.1
	downvoteWeightFactor  = 0.5
)

// contribution is one feedback's extracted position: the canonical key,
// the presentation answer, and the effective authority weight.
type contribution struct {
	key    string
	answer any
	weight float64
}

// extractor pulls a contribution out of one feedback. ok is false when
// the feedback lacks the handler's required fields.
type extractor func(fb domain.Feedback) (contribution, bool)

// aggregateBy folds a feedback population into an Aggregate using the
// handler's extractor. Invalid feedback is skipped; when nothing valid
// remains the distinguished no-valid-feedback aggregate is returned.
func aggregateBy(feedbacks []domain.Feedback, extract extractor) domain.Aggregate {
	positions := make(map[string]domain.Position)
	valid := false

	for _, fb := range feedbacks {
		c, ok := extract(fb)
		if !ok {
			continue
		}
		valid = true

		pos, exists := positions[c.key]
		if !exists {
			pos = domain.Position{Key: c.key, Answer: c.answer}
		}
		pos.Weight += c.weight
		pos.Supporters = append(pos.Supporters, domain.Supporter{
			UserID:    fb.UserID,
			Username:  fb.Author.Username,
			Authority: c.weight,
		})
		positions[c.key] = pos
	}

	if !valid {
		return domain.NoValidFeedback()
	}

	agg := domain.Aggregate{OK: true, Positions: positions}
	if leading, ok := agg.Leading(); ok {
		agg.Consensus = leading.Answer
	}
	return agg
}

// positionOf adapts an extractor to the Position interface method.
func positionOf(fb domain.Feedback, extract extractor) (string, bool) {
	c, ok := extract(fb)
	if !ok {
		return "", false
	}
	return c.key, true
}

// exactConsistency is the binary agreement score for discrete-answer
// handlers: 1 when the feedback's position matches the consensus
// position, 0 otherwise.
func exactConsistency(fb domain.Feedback, agg domain.Aggregate, extract extractor) float64 {
	c, ok := extract(fb)
	if !ok || !agg.OK {
		return 0
	}
	leading, ok := agg.Leading()
	if !ok {
		return 0
	}
	if c.key == leading.Key {
		return 1
	}
	return 0
}

// labelKey canonicalizes a label set into an order-insensitive key.
func labelKey(labels []string) string {
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// groundTruthString reads a string value from the ground-truth payload.
func groundTruthString(gt map[string]any, key string) (string, bool) {
	if gt == nil {
		return "", false
	}
	v, ok := gt[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// groundTruthStrings reads a string-slice value from the ground-truth
// payload, accepting both []string and decoded-JSON []any shapes.
func groundTruthStrings(gt map[string]any, key string) ([]string, bool) {
	if gt == nil {
		return nil, false
	}
	switch vals := gt[key].(type) {
	case []string:
		return vals, true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// prompt renders the task input as a stable export prompt.
func prompt(task domain.Task) string {
	if text, ok := task.InputData["text"].(string); ok {
		return text
	}
	if q, ok := task.InputData["question"].(string); ok {
		if ctx, ok := task.InputData["context"].(string); ok {
			return fmt.Sprintf("%s\n\n%s", ctx, q)
		}
		return q
	}
	keys := make([]string, 0, len(task.InputData))
	for k := range task.InputData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, task.InputData[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// answerText renders a position answer for export.
func answerText(answer any) string {
	switch v := answer.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// sftRecords emits one supervised fine-tuning record from the consensus
// answer. Nothing is emitted without a valid aggregate.
func sftRecords(task domain.Task, agg domain.Aggregate) []domain.ExportRecord {
	if !agg.OK {
		return nil
	}
	return []domain.ExportRecord{{
		"prompt":     prompt(task),
		"completion": answerText(agg.Consensus),
		"task_type":  string(task.Type),
		"task_id":    task.ID,
	}}
}

// preferenceRecords emits chosen/rejected pairs: the leading position
// against each lower-ranked position. Tasks with a single position
// yield nothing.
func preferenceRecords(task domain.Task, agg domain.Aggregate) []domain.ExportRecord {
	if !agg.OK {
		return nil
	}
	ranked := agg.Ranked()
	if len(ranked) < 2 {
		return nil
	}
	records := make([]domain.ExportRecord, 0, len(ranked)-1)
	for _, rejected := range ranked[1:] {
		records = append(records, domain.ExportRecord{
			"prompt":    prompt(task),
			"chosen":    answerText(ranked[0].Answer),
			"rejected":  answerText(rejected.Answer),
			"task_type": string(task.Type),
			"task_id":   task.ID,
		})
	}
	return records
}

// exportRecords dispatches on the export format.
func exportRecords(task domain.Task, agg domain.Aggregate, format domain.ExportFormat) []domain.ExportRecord {
	switch format {
	case domain.ExportPreference:
		return preferenceRecords(task, agg)
	default:
		return sftRecords(task, agg)
	}
}
