package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arial-it/rlcf/infrastructure/handlers"
	"github.com/arial-it/rlcf/infrastructure/storage"
	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// recordingBiasReporter captures StoreReports calls and can fail on
// demand.
type recordingBiasReporter struct {
	calls []int64
	err   error
}

func (r *recordingBiasReporter) StoreReports(ctx context.Context, store ports.Store, taskID int64) error {
	r.calls = append(r.calls, taskID)
	return r.err
}

func newTestOrchestrator(t *testing.T, bias BiasReporter) (*Orchestrator, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	settings := NewSettings(DefaultScoringConfig(), TaskSchemaConfig{})
	engine := NewEngine(store, handlers.NewRegistry(), settings, nil, nil)
	return NewOrchestrator(engine, bias, store, nil), store
}

func TestOrchestratorRunFullCycle(t *testing.T) {
	reporter := &recordingBiasReporter{}
	orch, store := newTestOrchestrator(t, reporter)
	seedClassificationTask(store)

	result, err := orch.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, domain.ResultUncertainty, result.Type)
	assert.Equal(t, []int64{1}, reporter.calls)

	// The consistency phase ran.
	feedbacks, err := store.ListFeedbackByTask(context.Background(), 1)
	require.NoError(t, err)
	for _, fb := range feedbacks {
		assert.NotNil(t, fb.ConsistencyScore)
	}
}

func TestOrchestratorBiasFailureDoesNotAbort(t *testing.T) {
	reporter := &recordingBiasReporter{err: errors.New("bias exploded")}
	orch, store := newTestOrchestrator(t, reporter)
	seedClassificationTask(store)

	result, err := orch.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultUncertainty, result.Type)
	assert.NotEmpty(t, reporter.calls)
}

func TestOrchestratorSkipsScoringOnErrorResult(t *testing.T) {
	reporter := &recordingBiasReporter{}
	orch, _ := newTestOrchestrator(t, reporter)

	result, err := orch.Run(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultError, result.Type)

	// Bias still runs; partial insight has value.
	assert.Equal(t, []int64{404}, reporter.calls)
}

func TestOrchestratorNilBiasReporter(t *testing.T) {
	orch, store := newTestOrchestrator(t, nil)
	seedClassificationTask(store)

	result, err := orch.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultUncertainty, result.Type)
}

func TestOrchestratorRunAll(t *testing.T) {
	reporter := &recordingBiasReporter{}
	orch, store := newTestOrchestrator(t, reporter)
	seedClassificationTask(store)

	store.PutTask(domain.Task{ID: 2, Type: domain.TaskQA, Status: domain.StatusAggregated})
	store.PutTask(domain.Task{ID: 3, Type: domain.TaskQA, Status: domain.StatusOpen})

	results, err := orch.RunAll(context.Background(), domain.StatusAggregated, 4)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byTask := map[int64]domain.AggregationResult{}
	for _, r := range results {
		byTask[r.TaskID] = r
	}
	assert.Equal(t, domain.ResultUncertainty, byTask[1].Type)
	// Task 2 has no feedback at all.
	assert.Equal(t, domain.ResultNoConsensus, byTask[2].Type)
}

func TestOrchestratorRunAllEmptyStatus(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil)

	results, err := orch.RunAll(context.Background(), domain.StatusOpen, 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}
