package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// CalculateDisagreement quantifies disagreement over a weighted-position
// map as Shannon entropy of the weight shares, normalized by using the
// number of distinct positions as the logarithm base. The result is in
// [0,1] and invariant to uniform positive scaling of the weights.
// Zero or one position, or a zero total weight, yields 0.
func CalculateDisagreement(weightedPositions map[string]float64) float64 {
	if len(weightedPositions) <= 1 {
		return 0.0
	}

	var total float64
	for _, w := range weightedPositions {
		total += w
	}
	if total == 0 {
		return 0.0
	}

	// Entropy with base n equals natural entropy / ln(n).
	n := float64(len(weightedPositions))
	var entropy float64
	for _, w := range weightedPositions {
		p := w / total
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return entropy / math.Log(n)
}

// Engine aggregates authority-weighted feedback per task, measures
// disagreement, and emits either a collapsed consensus or an
// uncertainty-preserving result. It also writes the post-hoc
// consistency and correctness scores for each feedback.
type Engine struct {
	store    ports.Store
	registry ports.HandlerRegistry
	settings *Settings
	metrics  ports.MetricsRecorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewEngine creates an Engine. metrics may be nil; logger defaults to a
// no-op logger.
func NewEngine(store ports.Store, registry ports.HandlerRegistry, settings *Settings, metrics ports.MetricsRecorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		registry: registry,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
		tracer:   otel.Tracer("consensus-engine"),
	}
}

// AggregateWithUncertainty runs one aggregation cycle for a task:
// resolve the handler, aggregate all feedback, measure disagreement,
// and branch on the configured threshold tau. Above tau the result
// preserves every alternative position with supporters and support
// percentages; at or below tau it collapses to a single consensus
// answer. Missing tasks and unregistered task types come back as
// error-typed results; "no valid feedback" comes back as an explicit
// no-consensus result, never an empty success.
func (e *Engine) AggregateWithUncertainty(ctx context.Context, taskID int64) (domain.AggregationResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.AggregateWithUncertainty",
		trace.WithAttributes(attribute.Int64("task.id", taskID)))
	defer span.End()

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return errorResult(taskID, "task not found"), nil
		}
		span.RecordError(err)
		return domain.AggregationResult{}, err
	}

	handler, err := e.registry.Resolve(task.Type)
	if err != nil {
		span.RecordError(err)
		return errorResult(taskID, fmt.Sprintf("no aggregation logic for task type %s", task.Type)), nil
	}

	feedbacks, err := e.store.ListFeedbackByTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return domain.AggregationResult{}, fmt.Errorf("list feedback for task %d: %w", taskID, err)
	}
	if len(feedbacks) == 0 {
		return e.finishResult(task, noConsensusResult(taskID, "no feedback found for this task"))
	}

	agg := handler.Aggregate(task, feedbacks)
	if !agg.OK {
		return e.finishResult(task, noConsensusResult(taskID, "no valid feedback for this task type"))
	}
	if agg.TotalWeight() == 0 {
		// All contributing evaluators carry zero authority. A
		// tie-break among weightless positions is not a consensus.
		return e.finishResult(task, noConsensusResult(taskID, "no authoritative feedback for this task"))
	}

	disagreement := CalculateDisagreement(agg.WeightedPositions())
	leading, _ := agg.Leading()
	tau := e.settings.Scoring().Thresholds.Disagreement

	result := domain.AggregationResult{
		ID:             uuid.NewString(),
		TaskID:         taskID,
		PrimaryAnswer:  leading.Answer,
		Confidence:     1 - disagreement,
		Disagreement:   disagreement,
		EvaluatorCount: agg.EvaluatorCount(),
		TotalWeight:    agg.TotalWeight(),
		ComputedAt:     time.Now().UTC(),
	}

	if disagreement > tau {
		result.Type = domain.ResultUncertainty
		result.Alternatives = alternativePositions(agg, leading)
	} else {
		result.Type = domain.ResultConsensus
	}

	span.SetAttributes(
		attribute.String("task.type", string(task.Type)),
		attribute.String("result.type", string(result.Type)),
		attribute.Float64("result.disagreement", disagreement),
		attribute.Int("result.evaluators", result.EvaluatorCount),
	)
	return e.finishResult(task, result)
}

// finishResult records metrics for a completed cycle.
func (e *Engine) finishResult(task domain.Task, result domain.AggregationResult) (domain.AggregationResult, error) {
	if e.metrics != nil {
		e.metrics.RecordAggregation(task.Type, result.Type, result.Disagreement)
	}
	return result, nil
}

// alternativePositions ranks every non-primary position with its
// supporters and share of the total authority weight.
func alternativePositions(agg domain.Aggregate, leading domain.Position) []domain.AlternativePosition {
	total := agg.TotalWeight()
	if total == 0 {
		return nil
	}

	var alternatives []domain.AlternativePosition
	for _, pos := range agg.Ranked() {
		if pos.Key == leading.Key {
			continue
		}
		alternatives = append(alternatives, domain.AlternativePosition{
			Answer:         pos.Answer,
			SupportPercent: pos.Weight / total * 100,
			Supporters:     pos.Supporters,
		})
	}
	return alternatives
}

func errorResult(taskID int64, msg string) domain.AggregationResult {
	return domain.AggregationResult{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		Type:       domain.ResultError,
		Err:        msg,
		ComputedAt: time.Now().UTC(),
	}
}

func noConsensusResult(taskID int64, msg string) domain.AggregationResult {
	return domain.AggregationResult{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		Type:       domain.ResultNoConsensus,
		Err:        msg,
		ComputedAt: time.Now().UTC(),
	}
}

// CalculateAndStoreConsistency writes each feedback's consistency score
// against the aggregated result. The handler's aggregate is recomputed
// here so the phase stands alone inside its own transaction.
func (e *Engine) CalculateAndStoreConsistency(ctx context.Context, store ports.Store, taskID int64) error {
	ctx, span := e.tracer.Start(ctx, "Engine.CalculateAndStoreConsistency",
		trace.WithAttributes(attribute.Int64("task.id", taskID)))
	defer span.End()

	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	handler, err := e.registry.Resolve(task.Type)
	if err != nil {
		return err
	}
	feedbacks, err := store.ListFeedbackByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list feedback for task %d: %w", taskID, err)
	}
	if len(feedbacks) == 0 {
		return nil
	}

	agg := handler.Aggregate(task, feedbacks)
	if !agg.OK {
		return nil
	}

	for _, fb := range feedbacks {
		score := handler.Consistency(fb, agg)
		if err := store.SetConsistencyScore(ctx, fb.ID, score); err != nil {
			return fmt.Errorf("store consistency for feedback %d: %w", fb.ID, err)
		}
	}
	return nil
}

// CalculateAndStoreCorrectness writes each feedback's correctness score
// against the task's ground truth. Tasks without ground truth are a
// no-op; this is the no-data case, not a failure.
func (e *Engine) CalculateAndStoreCorrectness(ctx context.Context, store ports.Store, taskID int64) error {
	ctx, span := e.tracer.Start(ctx, "Engine.CalculateAndStoreCorrectness",
		trace.WithAttributes(attribute.Int64("task.id", taskID)))
	defer span.End()

	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if len(task.GroundTruth) == 0 {
		return nil
	}
	handler, err := e.registry.Resolve(task.Type)
	if err != nil {
		return err
	}
	feedbacks, err := store.ListFeedbackByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list feedback for task %d: %w", taskID, err)
	}

	for _, fb := range feedbacks {
		score := handler.Correctness(fb, task.GroundTruth)
		if err := store.SetCorrectnessScore(ctx, fb.ID, score); err != nil {
			return fmt.Errorf("store correctness for feedback %d: %w", fb.ID, err)
		}
	}
	return nil
}
