package bias

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arial-it/rlcf/infrastructure/handlers"
	"github.com/arial-it/rlcf/infrastructure/storage"
	"github.com/arial-it/rlcf/internal/domain"
)

var testBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *storage.MemoryStore
	analyzer *Analyzer
	nextID   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	analyzer := NewAnalyzer(store, handlers.NewRegistry(), nil, zap.NewNop())
	return &fixture{store: store, analyzer: analyzer}
}

// addTask seeds an NLI task with one response and returns the task id.
func (f *fixture) addTask(taskID int64) {
	f.store.PutTask(domain.Task{ID: taskID, Type: domain.TaskNLI, Status: domain.StatusAggregated})
	f.store.PutResponse(domain.Response{ID: taskID, TaskID: taskID})
}

// addUser seeds a user with optional field and experience credentials.
func (f *fixture) addUser(userID int64, field, experience string) {
	f.store.PutUser(domain.User{ID: userID, Username: "u", AuthorityScore: 0.5})
	if field != "" {
		f.store.PutCredential(domain.Credential{
			UserID: userID, Type: domain.CredentialProfessionalField, Value: field,
		})
	}
	if experience != "" {
		f.store.PutCredential(domain.Credential{
			UserID: userID, Type: domain.CredentialProfessionalExperience, Value: experience,
		})
	}
}

// addLabel seeds one feedback with the given chosen label, submitted at
// a fixed offset in minutes so chronological order follows call order.
func (f *fixture) addLabel(taskID, userID int64, label string, minute int) {
	f.nextID++
	f.store.PutFeedback(domain.Feedback{
		ID:           f.nextID,
		UserID:       userID,
		ResponseID:   taskID,
		FeedbackData: map[string]any{"chosen_label": label},
		SubmittedAt:  testBase.Add(time.Duration(minute) * time.Minute),
	})
}

func TestProfessionalClustering(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	f.addUser(1, "civil", "")
	f.addUser(2, "civil", "")
	f.addUser(3, "civil", "")
	f.addUser(4, "criminal", "")

	f.addLabel(1, 1, "entailment", 0)
	f.addLabel(1, 2, "entailment", 1)
	f.addLabel(1, 3, "contradiction", 2)
	f.addLabel(1, 4, "contradiction", 3)

	ctx := context.Background()

	// Agrees with the civil-group modal position.
	score, err := f.analyzer.ProfessionalClustering(ctx, f.store, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	// Deviates from the civil-group modal position.
	score, err = f.analyzer.ProfessionalClustering(ctx, f.store, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	// Sole member of the criminal group.
	score, err = f.analyzer.ProfessionalClustering(ctx, f.store, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestProfessionalClusteringNoCredential(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	f.addUser(1, "", "")
	f.addLabel(1, 1, "entailment", 0)

	score, err := f.analyzer.ProfessionalClustering(context.Background(), f.store, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestDemographicHomogeneity(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)

	// Juniors all agree, seniors split evenly.
	f.addUser(1, "", "2")
	f.addUser(2, "", "4")
	f.addUser(3, "", "20")
	f.addUser(4, "", "25")

	f.addLabel(1, 1, "entailment", 0)
	f.addLabel(1, 2, "entailment", 1)
	f.addLabel(1, 3, "entailment", 2)
	f.addLabel(1, 4, "contradiction", 3)

	score, err := f.analyzer.Demographic(context.Background(), f.store, 1)
	require.NoError(t, err)
	// junior bucket 1.0, senior bucket 0.5.
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestDemographicNoCredentials(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	f.addUser(1, "", "")
	f.addLabel(1, 1, "entailment", 0)

	score, err := f.analyzer.Demographic(context.Background(), f.store, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestExperienceBucket(t *testing.T) {
	tests := []struct {
		value string
		want  string
		ok    bool
	}{
		{value: "0", want: "junior", ok: true},
		{value: "4.9", want: "junior", ok: true},
		{value: "5", want: "mid", ok: true},
		{value: "14", want: "mid", ok: true},
		{value: "15", want: "senior", ok: true},
		{value: "40", want: "senior", ok: true},
		{value: "many", ok: false},
	}
	for _, tt := range tests {
		got, ok := experienceBucket(tt.value)
		assert.Equal(t, tt.ok, ok, tt.value)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.value)
		}
	}
}

func TestTemporalDrift(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	for userID := int64(1); userID <= 4; userID++ {
		f.addUser(userID, "", "")
	}

	// First half all entailment, second half all contradiction.
	f.addLabel(1, 1, "entailment", 0)
	f.addLabel(1, 2, "entailment", 1)
	f.addLabel(1, 3, "contradiction", 2)
	f.addLabel(1, 4, "contradiction", 3)

	score, err := f.analyzer.Temporal(context.Background(), f.store, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestTemporalTooFewEntries(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	for userID := int64(1); userID <= 3; userID++ {
		f.addUser(userID, "", "")
		f.addLabel(1, userID, "entailment", int(userID))
	}

	score, err := f.analyzer.Temporal(context.Background(), f.store, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestAnchoring(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	for userID := int64(1); userID <= 5; userID++ {
		f.addUser(userID, "", "")
	}

	// Anchor is entailment; one of the two later entries follows it.
	f.addLabel(1, 1, "entailment", 0)
	f.addLabel(1, 2, "entailment", 1)
	f.addLabel(1, 3, "entailment", 2)
	f.addLabel(1, 4, "entailment", 3)
	f.addLabel(1, 5, "contradiction", 4)

	score, err := f.analyzer.Anchoring(context.Background(), f.store, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestAnchoringTooFewEntries(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	for userID := int64(1); userID <= 4; userID++ {
		f.addUser(userID, "", "")
		f.addLabel(1, userID, "entailment", int(userID))
	}

	score, err := f.analyzer.Anchoring(context.Background(), f.store, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestConfirmation(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	f.addTask(2)
	f.addUser(1, "", "")

	// Two prior entailment answers on earlier NLI tasks, then the same
	// answer again on task 2.
	f.addLabel(1, 1, "entailment", 0)
	f.addLabel(1, 1, "entailment", 1)
	f.addLabel(2, 1, "entailment", 10)

	score, err := f.analyzer.Confirmation(context.Background(), f.store, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestConfirmationNoHistory(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	f.addUser(1, "", "")
	f.addLabel(1, 1, "entailment", 0)

	score, err := f.analyzer.Confirmation(context.Background(), f.store, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestTotalReport(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	f.addUser(1, "civil", "2")
	f.addUser(2, "civil", "3")
	f.addUser(3, "civil", "20")

	f.addLabel(1, 1, "entailment", 0)
	f.addLabel(1, 2, "entailment", 1)
	f.addLabel(1, 3, "entailment", 2)

	report, err := f.analyzer.Total(context.Background(), f.store, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.TaskID)
	assert.Len(t, report.Signals, 6)
	assert.Len(t, report.Dominant, 3)

	// A unanimous homogeneous population maxes demographic and
	// geographic homogeneity while every deviation signal stays 0.
	assert.Equal(t, 1.0, report.Signals[domain.BiasDemographic])
	assert.Equal(t, 1.0, report.Signals[domain.BiasGeographic])
	assert.Equal(t, 0.0, report.Signals[domain.BiasProfessionalClustering])
	assert.Equal(t, 0.0, report.Signals[domain.BiasTemporal])
	assert.Equal(t, 0.0, report.Signals[domain.BiasAnchoring])

	// Composite sqrt(1 + 1) > 1 classifies as high, with one
	// recommendation per signal above the cutoff.
	assert.Equal(t, "high", report.Level)
	assert.Len(t, report.Recommendations, 2)
}

func TestTotalReportEmptyTask(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)

	report, err := f.analyzer.Total(context.Background(), f.store, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.Composite)
	assert.Equal(t, "low", report.Level)
	assert.Empty(t, report.Recommendations)
}

func TestStoreReports(t *testing.T) {
	f := newFixture(t)
	f.addTask(1)
	f.addUser(1, "civil", "")
	f.addUser(2, "civil", "")

	f.addLabel(1, 1, "entailment", 0)
	f.addLabel(1, 2, "contradiction", 1)

	ctx := context.Background()
	require.NoError(t, f.analyzer.StoreReports(ctx, f.store, 1))

	reports, err := f.store.ListBiasReports(ctx, 1)
	require.NoError(t, err)

	// Six population-level reports plus one clustering report per user.
	assert.Len(t, reports, 8)

	perUser := 0
	for _, r := range reports {
		assert.NotEmpty(t, r.ID)
		if r.UserID != PopulationUserID {
			perUser++
			assert.Equal(t, domain.BiasProfessionalClustering, r.BiasType)
		}
	}
	assert.Equal(t, 2, perUser)
}
