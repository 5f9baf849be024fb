package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arial-it/rlcf/internal/domain"
)

func feedbackFrom(userID int64, authority float64, data map[string]any) domain.Feedback {
	return domain.Feedback{
		ID:     userID,
		UserID: userID,
		Author: domain.User{
			ID:             userID,
			Username:       "user",
			AuthorityScore: authority,
		},
		FeedbackData: data,
		SubmittedAt:  time.Now(),
	}
}

func TestClassificationAggregate(t *testing.T) {
	h := NewClassificationHandler()
	task := domain.Task{ID: 1, Type: domain.TaskClassification}

	// Two evaluators at 0.5 and 0.3 back label A, one at 0.9 backs B.
	// The minority-by-headcount position wins on authority weight.
	feedbacks := []domain.Feedback{
		feedbackFrom(1, 0.5, map[string]any{"validated_labels": []any{"contract_dispute"}}),
		feedbackFrom(2, 0.3, map[string]any{"validated_labels": []any{"contract_dispute"}}),
		feedbackFrom(3, 0.9, map[string]any{"validated_labels": []any{"tort_claim"}}),
	}

	agg := h.Aggregate(task, feedbacks)
	require.True(t, agg.OK)
	require.Len(t, agg.Positions, 2)

	leading, ok := agg.Leading()
	require.True(t, ok)
	assert.Equal(t, "tort_claim", leading.Key)
	assert.InDelta(t, 0.9, leading.Weight, 1e-9)
	assert.Equal(t, []string{"tort_claim"}, agg.Consensus)

	assert.InDelta(t, 0.8, agg.Positions["contract_dispute"].Weight, 1e-9)
	assert.Len(t, agg.Positions["contract_dispute"].Supporters, 2)
	assert.Equal(t, 3, agg.EvaluatorCount())
	assert.InDelta(t, 1.7, agg.TotalWeight(), 1e-9)
}

func TestClassificationOrderInsensitive(t *testing.T) {
	h := NewClassificationHandler()
	task := domain.Task{ID: 1, Type: domain.TaskClassification}

	feedbacks := []domain.Feedback{
		feedbackFrom(1, 0.5, map[string]any{"validated_labels": []any{"a", "b"}}),
		feedbackFrom(2, 0.5, map[string]any{"validated_labels": []any{"b", "a"}}),
	}

	agg := h.Aggregate(task, feedbacks)
	require.True(t, agg.OK)
	assert.Len(t, agg.Positions, 1)
	assert.InDelta(t, 1.0, agg.Positions["a|b"].Weight, 1e-9)
}

func TestClassificationNoValidFeedback(t *testing.T) {
	h := NewClassificationHandler()
	task := domain.Task{ID: 1, Type: domain.TaskClassification}

	feedbacks := []domain.Feedback{
		feedbackFrom(1, 0.5, map[string]any{"wrong_key": []any{"a"}}),
		feedbackFrom(2, 0.5, map[string]any{"validated_labels": []any{}}),
	}

	agg := h.Aggregate(task, feedbacks)
	assert.False(t, agg.OK)
	assert.Empty(t, agg.Positions)
}

func TestClassificationConsistency(t *testing.T) {
	h := NewClassificationHandler()
	task := domain.Task{ID: 1, Type: domain.TaskClassification}

	agreeing := feedbackFrom(1, 0.9, map[string]any{"validated_labels": []any{"x"}})
	dissenting := feedbackFrom(2, 0.1, map[string]any{"validated_labels": []any{"y"}})
	agg := h.Aggregate(task, []domain.Feedback{agreeing, dissenting})

	assert.Equal(t, 1.0, h.Consistency(agreeing, agg))
	assert.Equal(t, 0.0, h.Consistency(dissenting, agg))
	assert.Equal(t, 0.0, h.Consistency(feedbackFrom(3, 0.5, nil), agg))
}

func TestClassificationCorrectness(t *testing.T) {
	h := NewClassificationHandler()
	truth := map[string]any{"labels": []any{"b", "a"}}

	match := feedbackFrom(1, 0.5, map[string]any{"validated_labels": []any{"a", "b"}})
	miss := feedbackFrom(2, 0.5, map[string]any{"validated_labels": []any{"a"}})

	assert.Equal(t, 1.0, h.Correctness(match, truth))
	assert.Equal(t, 0.0, h.Correctness(miss, truth))
	assert.Equal(t, 0.0, h.Correctness(match, nil))
}

func TestQAIncorrectPositionReducesWeight(t *testing.T) {
	h := NewQAHandler()
	task := domain.Task{ID: 1, Type: domain.TaskQA}

	feedbacks := []domain.Feedback{
		feedbackFrom(1, 1.0, map[string]any{
			"validated_answer": "the claim is time barred",
			"position":         "incorrect",
		}),
		feedbackFrom(2, 0.2, map[string]any{
			"validated_answer": "the claim may proceed",
			"position":         "correct",
		}),
	}

	agg := h.Aggregate(task, feedbacks)
	require.True(t, agg.OK)

	// Authority 1.0 collapses to 0.1 under the incorrect multiplier,
	// so the 0.2-authority answer leads.
	leading, ok := agg.Leading()
	require.True(t, ok)
	assert.Equal(t, "the claim may proceed", leading.Answer)
	assert.InDelta(t, 0.1, agg.Positions["the claim is time barred"].Weight, 1e-9)
}

func TestQARequiresPositionField(t *testing.T) {
	h := NewQAHandler()
	task := domain.Task{ID: 1, Type: domain.TaskQA}

	// An answer without a self-assessed position never enters the
	// population, at any authority.
	unpositioned := feedbackFrom(1, 1.0, map[string]any{
		"validated_answer": "the claim is time barred",
	})
	agg := h.Aggregate(task, []domain.Feedback{unpositioned})
	assert.False(t, agg.OK)

	positioned := feedbackFrom(2, 0.2, map[string]any{
		"validated_answer": "the claim may proceed",
		"position":         "correct",
	})
	agg = h.Aggregate(task, []domain.Feedback{unpositioned, positioned})
	require.True(t, agg.OK)
	assert.Equal(t, 1, agg.EvaluatorCount())
	assert.Equal(t, "the claim may proceed", agg.Consensus)

	_, ok := h.Position(unpositioned)
	assert.False(t, ok)
}

func TestQAConsistencyGraded(t *testing.T) {
	h := NewQAHandler()
	task := domain.Task{ID: 1, Type: domain.TaskQA}

	fbA := feedbackFrom(1, 0.9, map[string]any{"validated_answer": "the contract is void for breach", "position": "correct"})
	fbB := feedbackFrom(2, 0.1, map[string]any{"validated_answer": "the contract is void for mistake", "position": "correct"})
	agg := h.Aggregate(task, []domain.Feedback{fbA, fbB})

	assert.Equal(t, 1.0, h.Consistency(fbA, agg))
	partial := h.Consistency(fbB, agg)
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestSummarizationBadRatingHalvesWeight(t *testing.T) {
	h := NewSummarizationHandler()
	task := domain.Task{ID: 1, Type: domain.TaskSummarization}

	feedbacks := []domain.Feedback{
		feedbackFrom(1, 0.8, map[string]any{
			"revised_summary": "the court dismissed the appeal",
			"rating":          "bad",
		}),
		feedbackFrom(2, 0.8, map[string]any{
			"revised_summary": "the appeal was upheld in part",
			"rating":          "good",
		}),
	}

	agg := h.Aggregate(task, feedbacks)
	require.True(t, agg.OK)
	assert.InDelta(t, 0.4, agg.Positions["the court dismissed the appeal"].Weight, 1e-9)
	assert.InDelta(t, 0.8, agg.Positions["the appeal was upheld in part"].Weight, 1e-9)
	assert.Equal(t, "the appeal was upheld in part", agg.Consensus)
}

func TestDraftingWorseRatingHalvesWeight(t *testing.T) {
	h := NewDraftingHandler()
	task := domain.Task{ID: 1, Type: domain.TaskDrafting}

	feedbacks := []domain.Feedback{
		feedbackFrom(1, 1.0, map[string]any{
			"revised_target": "the parties shall arbitrate disputes",
			"rating":         "worse",
		}),
	}

	agg := h.Aggregate(task, feedbacks)
	require.True(t, agg.OK)
	assert.InDelta(t, 0.5, agg.TotalWeight(), 1e-9)
}

func TestPredictionAggregateAndCorrectness(t *testing.T) {
	h := NewPredictionHandler()
	task := domain.Task{ID: 1, Type: domain.TaskPrediction}

	feedbacks := []domain.Feedback{
		feedbackFrom(1, 0.6, map[string]any{"chosen_outcome": "plaintiff_wins"}),
		feedbackFrom(2, 0.5, map[string]any{"chosen_outcome": "defendant_wins"}),
	}

	agg := h.Aggregate(task, feedbacks)
	require.True(t, agg.OK)
	assert.Equal(t, "plaintiff_wins", agg.Consensus)

	truth := map[string]any{"outcome": "defendant_wins"}
	assert.Equal(t, 0.0, h.Correctness(feedbacks[0], truth))
	assert.Equal(t, 1.0, h.Correctness(feedbacks[1], truth))
}

func TestNLIPosition(t *testing.T) {
	h := NewNLIHandler()

	pos, ok := h.Position(feedbackFrom(1, 0.5, map[string]any{"chosen_label": "entailment"}))
	require.True(t, ok)
	assert.Equal(t, "entailment", pos)

	_, ok = h.Position(feedbackFrom(2, 0.5, map[string]any{"chosen_label": ""}))
	assert.False(t, ok)
}

func TestNERConsistencyPositional(t *testing.T) {
	h := NewNERHandler()
	task := domain.Task{ID: 1, Type: domain.TaskNER}

	fbA := feedbackFrom(1, 0.9, map[string]any{"validated_tags": []any{"B-PER", "O", "B-ORG"}})
	fbB := feedbackFrom(2, 0.1, map[string]any{"validated_tags": []any{"B-PER", "O", "O"}})
	agg := h.Aggregate(task, []domain.Feedback{fbA, fbB})

	require.True(t, agg.OK)
	assert.Equal(t, 1.0, h.Consistency(fbA, agg))
	assert.InDelta(t, 2.0/3.0, h.Consistency(fbB, agg), 1e-9)
}

func TestExportSFT(t *testing.T) {
	h := NewQAHandler()
	task := domain.Task{
		ID:        7,
		Type:      domain.TaskQA,
		InputData: map[string]any{"question": "Is the clause enforceable?", "context": "Clause 4.2 of the lease."},
	}
	feedbacks := []domain.Feedback{
		feedbackFrom(1, 0.9, map[string]any{"validated_answer": "yes, it is enforceable", "position": "correct"}),
	}
	agg := h.Aggregate(task, feedbacks)

	records := h.FormatForExport(task, feedbacks, agg, domain.ExportSFT)
	require.Len(t, records, 1)
	assert.Equal(t, "Clause 4.2 of the lease.\n\nIs the clause enforceable?", records[0]["prompt"])
	assert.Equal(t, "yes, it is enforceable", records[0]["completion"])
	assert.Equal(t, "QA", records[0]["task_type"])
}

func TestExportPreferencePairs(t *testing.T) {
	h := NewClassificationHandler()
	task := domain.Task{ID: 7, Type: domain.TaskClassification, InputData: map[string]any{"text": "lease dispute over clause 4.2"}}
	feedbacks := []domain.Feedback{
		feedbackFrom(1, 0.9, map[string]any{"validated_labels": []any{"contract_dispute"}}),
		feedbackFrom(2, 0.4, map[string]any{"validated_labels": []any{"tort_claim"}}),
	}
	agg := h.Aggregate(task, feedbacks)

	records := h.FormatForExport(task, feedbacks, agg, domain.ExportPreference)
	require.Len(t, records, 1)
	assert.Equal(t, "contract_dispute", records[0]["chosen"])
	assert.Equal(t, "tort_claim", records[0]["rejected"])

	// A unanimous task has nothing to contrast.
	unanimous := h.Aggregate(task, feedbacks[:1])
	assert.Empty(t, h.FormatForExport(task, feedbacks[:1], unanimous, domain.ExportPreference))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	for _, taskType := range domain.AllTaskTypes {
		h, err := r.Resolve(taskType)
		require.NoError(t, err)
		assert.Equal(t, taskType, h.Type())
	}

	_, err := r.Resolve(domain.TaskType("TRANSLATION"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedTaskType)

	assert.Len(t, r.SupportedTypes(), len(domain.AllTaskTypes))
	assert.Error(t, r.Register(nil))
}
