package application

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// BiasReporter computes and persists bias reports for one task. It is
// satisfied by bias.Analyzer; declared here so the orchestrator does
// not depend on the analysis package directly.
type BiasReporter interface {
	StoreReports(ctx context.Context, store ports.Store, taskID int64) error
}

// Orchestrator drives a task's full aggregation cycle: aggregate and
// record the result, score consistency and correctness, compute bias
// reports. The three phases are independent units of work, each inside
// its own transaction; one phase failing is logged and must not prevent
// the others from running, since partial insight still has value.
type Orchestrator struct {
	engine *Engine
	bias   BiasReporter
	store  ports.Store
	logger *zap.Logger
}

// NewOrchestrator creates an Orchestrator. bias may be nil to skip the
// bias phase.
func NewOrchestrator(engine *Engine, bias BiasReporter, store ports.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{engine: engine, bias: bias, store: store, logger: logger}
}

// Run executes the three-phase cycle for one task and returns the
// aggregation result. There is no cross-task lock; independent tasks
// operate on disjoint rows and may run concurrently.
func (o *Orchestrator) Run(ctx context.Context, taskID int64) (domain.AggregationResult, error) {
	result, err := o.engine.AggregateWithUncertainty(ctx, taskID)
	if err != nil {
		// Infrastructure failure during aggregation. The scoring and
		// bias phases can still produce value, so continue.
		o.logger.Error("aggregation phase failed",
			zap.Int64("task_id", taskID), zap.Error(err))
		result = domain.AggregationResult{TaskID: taskID, Type: domain.ResultError, Err: err.Error()}
	}

	if !result.IsError() && result.Type != domain.ResultNoConsensus {
		txErr := o.store.WithinTx(ctx, func(tx ports.Store) error {
			return o.engine.CalculateAndStoreConsistency(ctx, tx, taskID)
		})
		if txErr != nil {
			o.logger.Error("consistency phase failed",
				zap.Int64("task_id", taskID), zap.Error(txErr))
		}

		txErr = o.store.WithinTx(ctx, func(tx ports.Store) error {
			return o.engine.CalculateAndStoreCorrectness(ctx, tx, taskID)
		})
		if txErr != nil {
			o.logger.Error("correctness phase failed",
				zap.Int64("task_id", taskID), zap.Error(txErr))
		}
	}

	if o.bias != nil {
		txErr := o.store.WithinTx(ctx, func(tx ports.Store) error {
			return o.bias.StoreReports(ctx, tx, taskID)
		})
		if txErr != nil {
			o.logger.Error("bias phase failed",
				zap.Int64("task_id", taskID), zap.Error(txErr))
		}
	}

	return result, nil
}

// RunAll processes every task in the given status, up to maxConcurrent
// cycles at a time. Each task's cycle is independent; a failed cycle is
// logged and does not abort the batch.
func (o *Orchestrator) RunAll(ctx context.Context, status domain.TaskStatus, maxConcurrent int) ([]domain.AggregationResult, error) {
	tasks, err := o.store.ListTasksByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	results := make([]domain.AggregationResult, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, task := range tasks {
		g.Go(func() error {
			result, err := o.Run(ctx, task.ID)
			if err != nil {
				o.logger.Error("aggregation cycle failed",
					zap.Int64("task_id", task.ID), zap.Error(err))
				result = domain.AggregationResult{TaskID: task.ID, Type: domain.ResultError, Err: err.Error()}
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
