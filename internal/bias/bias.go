// Package bias computes advisory bias signals over a task's evaluator
// population. Every signal is a read-only computation in [0,1]; none
// feeds back into authority scoring automatically.
package bias

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// Anchor and minimum-population constants for the chronological signals.
const (
	// anchorSize is how many initial feedback entries form the anchor
	// for anchoring bias.
	anchorSize = 3

	// minAnchoringEntries is the minimum feedback count before
	// anchoring bias is meaningful.
	minAnchoringEntries = 5

	// minTemporalEntries is the minimum feedback count before temporal
	// drift is meaningful.
	minTemporalEntries = 4

	// minGroupSize is the minimum professional-group size for
	// clustering bias.
	minGroupSize = 2
)

// Composite report cutoffs.
const (
	levelHighCutoff   = 1.0
	levelMediumCutoff = 0.5

	// recommendationCutoff flags individual components for mitigation.
	recommendationCutoff = 0.5
)

// Experience bucket boundaries in years.
const (
	juniorMaxYears = 5
	midMaxYears    = 15
)

// PopulationUserID marks bias reports that describe the whole evaluator
// population of a task rather than a single user.
const PopulationUserID int64 = 0

// Report is the combined bias picture for one task.
type Report struct {
	TaskID int64 `json:"task_id"`

	// Signals holds one score per bias type. User-specific signals
	// (clustering, confirmation) are averaged over the population.
	Signals map[domain.BiasType]float64 `json:"signals"`

	// Composite is the Euclidean norm of the six signals.
	Composite float64 `json:"composite"`

	// Level buckets the composite: low, medium, or high.
	Level string `json:"level"`

	// Dominant lists the top three signals by magnitude.
	Dominant []domain.BiasType `json:"dominant"`

	// Recommendations names a mitigation per signal above the cutoff.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Analyzer computes bias signals for tasks. Positions are extracted
// through the task type's handler so bias analysis and disagreement
// measurement share one canonical position form.
type Analyzer struct {
	store    ports.Store
	registry ports.HandlerRegistry
	metrics  ports.MetricsRecorder
	logger   *zap.Logger
}

// NewAnalyzer creates an Analyzer. metrics may be nil.
func NewAnalyzer(store ports.Store, registry ports.HandlerRegistry, metrics ports.MetricsRecorder, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{store: store, registry: registry, metrics: metrics, logger: logger}
}

// entry pairs one feedback with its extracted canonical position.
type entry struct {
	fb       domain.Feedback
	position string
}

// load resolves the task, its handler, and the positioned feedback
// population, dropping feedback the handler cannot position.
func (a *Analyzer) load(ctx context.Context, store ports.Store, taskID int64) (domain.Task, ports.TaskHandler, []entry, error) {
	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, nil, nil, err
	}
	handler, err := a.registry.Resolve(task.Type)
	if err != nil {
		return domain.Task{}, nil, nil, err
	}
	feedbacks, err := store.ListFeedbackByTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, nil, nil, fmt.Errorf("list feedback for task %d: %w", taskID, err)
	}

	entries := make([]entry, 0, len(feedbacks))
	for _, fb := range feedbacks {
		pos, ok := handler.Position(fb)
		if !ok {
			continue
		}
		entries = append(entries, entry{fb: fb, position: pos})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].fb.SubmittedAt.Before(entries[j].fb.SubmittedAt)
	})
	return task, handler, entries, nil
}

// ProfessionalClustering scores one user's deviation from the modal
// position of evaluators sharing their professional-field credential:
// 1 when the user disagrees with their group, 0 otherwise. Users
// without a field credential, or groups smaller than two, score 0.
func (a *Analyzer) ProfessionalClustering(ctx context.Context, store ports.Store, taskID, userID int64) (float64, error) {
	cred, ok, err := store.GetCredential(ctx, userID, domain.CredentialProfessionalField)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	_, _, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return 0, err
	}

	var group []entry
	var userEntry *entry
	for i, e := range entries {
		fieldCred, hasField, err := store.GetCredential(ctx, e.fb.UserID, domain.CredentialProfessionalField)
		if err != nil {
			return 0, err
		}
		if !hasField || fieldCred.Value != cred.Value {
			continue
		}
		group = append(group, e)
		if e.fb.UserID == userID {
			userEntry = &entries[i]
		}
	}

	if len(group) < minGroupSize || userEntry == nil {
		return 0, nil
	}

	if userEntry.position == modalPosition(group) {
		return 0, nil
	}
	return 1, nil
}

// Demographic measures within-bucket positional homogeneity after
// partitioning evaluators into junior/mid/senior experience buckets:
// the fraction matching each bucket's modal position, averaged over
// buckets. Absent data yields 0.
func (a *Analyzer) Demographic(ctx context.Context, store ports.Store, taskID int64) (float64, error) {
	_, _, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return 0, err
	}
	return a.bucketHomogeneity(ctx, store, entries, domain.CredentialProfessionalExperience, experienceBucket)
}

// Geographic is the same homogeneity computation bucketed by the
// professional-field credential, a proxy for jurisdictional clustering.
func (a *Analyzer) Geographic(ctx context.Context, store ports.Store, taskID int64) (float64, error) {
	_, _, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return 0, err
	}
	identity := func(v string) (string, bool) { return v, true }
	return a.bucketHomogeneity(ctx, store, entries, domain.CredentialProfessionalField, identity)
}

// bucketHomogeneity partitions entries by a credential-derived bucket
// and averages the modal-position share across buckets.
func (a *Analyzer) bucketHomogeneity(ctx context.Context, store ports.Store, entries []entry, credType string, bucket func(string) (string, bool)) (float64, error) {
	buckets := make(map[string][]entry)
	for _, e := range entries {
		cred, ok, err := store.GetCredential(ctx, e.fb.UserID, credType)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		name, ok := bucket(cred.Value)
		if !ok {
			continue
		}
		buckets[name] = append(buckets[name], e)
	}
	if len(buckets) == 0 {
		return 0, nil
	}

	var sum float64
	for _, group := range buckets {
		modal := modalPosition(group)
		matches := 0
		for _, e := range group {
			if e.position == modal {
				matches++
			}
		}
		sum += float64(matches) / float64(len(group))
	}
	return sum / float64(len(buckets)), nil
}

// experienceBucket maps a years-of-experience credential value to a
// seniority bucket. Non-numeric values are skipped.
func experienceBucket(value string) (string, bool) {
	years, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", false
	}
	switch {
	case years < juniorMaxYears:
		return "junior", true
	case years < midMaxYears:
		return "mid", true
	default:
		return "senior", true
	}
}

// Temporal measures drift between the first and second halves of the
// chronologically ordered feedback: the summed absolute difference of
// the two position-frequency distributions over the union of positions,
// halved to normalize into [0,1]. Fewer than four entries yield 0.
func (a *Analyzer) Temporal(ctx context.Context, store ports.Store, taskID int64) (float64, error) {
	_, _, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return 0, err
	}
	return temporalDrift(entries), nil
}

func temporalDrift(entries []entry) float64 {
	if len(entries) < minTemporalEntries {
		return 0
	}

	mid := len(entries) / 2
	first := positionFrequencies(entries[:mid])
	second := positionFrequencies(entries[mid:])

	union := make(map[string]struct{})
	for pos := range first {
		union[pos] = struct{}{}
	}
	for pos := range second {
		union[pos] = struct{}{}
	}

	var delta float64
	for pos := range union {
		delta += math.Abs(first[pos] - second[pos])
	}
	return delta / 2
}

// Confirmation compares each feedback's position against the same
// author's earlier feedback on tasks of the same type; the score is the
// fraction of prior positions matching the current one, averaged over
// all feedback. Authors with no prior feedback contribute 0.
func (a *Analyzer) Confirmation(ctx context.Context, store ports.Store, taskID int64) (float64, error) {
	task, handler, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var sum float64
	for _, e := range entries {
		prior, err := store.ListPriorFeedbackByUser(ctx, e.fb.UserID, task.Type, e.fb.SubmittedAt)
		if err != nil {
			return 0, err
		}
		matches, total := 0, 0
		for _, p := range prior {
			pos, ok := handler.Position(p)
			if !ok {
				continue
			}
			total++
			if pos == e.position {
				matches++
			}
		}
		if total > 0 {
			sum += float64(matches) / float64(total)
		}
	}
	return sum / float64(len(entries)), nil
}

// Anchoring treats the first three chronological feedback entries as an
// anchor and measures the fraction of subsequent feedback matching the
// anchor's modal position. Fewer than five entries yield 0.
func (a *Analyzer) Anchoring(ctx context.Context, store ports.Store, taskID int64) (float64, error) {
	_, _, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return 0, err
	}
	return anchoringScore(entries), nil
}

func anchoringScore(entries []entry) float64 {
	if len(entries) < minAnchoringEntries {
		return 0
	}

	anchor := modalPosition(entries[:anchorSize])
	rest := entries[anchorSize:]
	matches := 0
	for _, e := range rest {
		if e.position == anchor {
			matches++
		}
	}
	return float64(matches) / float64(len(rest))
}

// Total computes the combined bias report for a task: all six signals,
// their Euclidean norm bucketed into low/medium/high, the top three
// dominant signals, and a mitigation recommendation per signal above
// the cutoff.
func (a *Analyzer) Total(ctx context.Context, store ports.Store, taskID int64) (Report, error) {
	_, _, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return Report{}, err
	}

	signals := make(map[domain.BiasType]float64, 6)

	// Clustering is user-specific; the population signal is the mean
	// deviation across evaluators.
	if len(entries) > 0 {
		var sum float64
		for _, e := range entries {
			score, err := a.ProfessionalClustering(ctx, store, taskID, e.fb.UserID)
			if err != nil {
				return Report{}, err
			}
			sum += score
		}
		signals[domain.BiasProfessionalClustering] = sum / float64(len(entries))
	} else {
		signals[domain.BiasProfessionalClustering] = 0
	}

	if signals[domain.BiasDemographic], err = a.Demographic(ctx, store, taskID); err != nil {
		return Report{}, err
	}
	signals[domain.BiasTemporal] = temporalDrift(entries)
	if signals[domain.BiasGeographic], err = a.Geographic(ctx, store, taskID); err != nil {
		return Report{}, err
	}
	if signals[domain.BiasConfirmation], err = a.Confirmation(ctx, store, taskID); err != nil {
		return Report{}, err
	}
	signals[domain.BiasAnchoring] = anchoringScore(entries)

	if a.metrics != nil {
		for biasType, score := range signals {
			a.metrics.RecordBiasScore(biasType, score)
		}
	}

	return buildReport(taskID, signals), nil
}

// buildReport derives the composite, level, dominant types, and
// recommendations from the six signals.
func buildReport(taskID int64, signals map[domain.BiasType]float64) Report {
	var sumSquares float64
	for _, score := range signals {
		sumSquares += score * score
	}
	composite := math.Sqrt(sumSquares)

	level := "low"
	switch {
	case composite > levelHighCutoff:
		level = "high"
	case composite > levelMediumCutoff:
		level = "medium"
	}

	types := make([]domain.BiasType, 0, len(signals))
	for biasType := range signals {
		types = append(types, biasType)
	}
	sort.Slice(types, func(i, j int) bool {
		if signals[types[i]] != signals[types[j]] {
			return signals[types[i]] > signals[types[j]]
		}
		return types[i] < types[j]
	})
	dominant := types
	if len(dominant) > 3 {
		dominant = dominant[:3]
	}

	var recommendations []string
	for _, biasType := range types {
		if signals[biasType] > recommendationCutoff {
			recommendations = append(recommendations, mitigations[biasType])
		}
	}

	return Report{
		TaskID:          taskID,
		Signals:         signals,
		Composite:       composite,
		Level:           level,
		Dominant:        dominant,
		Recommendations: recommendations,
	}
}

// mitigations maps each signal to its named mitigation action,
// reproducible from the same cutoffs as the report.
var mitigations = map[domain.BiasType]string{
	domain.BiasProfessionalClustering: "recruit evaluators from additional professional fields",
	domain.BiasDemographic:            "balance the evaluator pool across experience levels",
	domain.BiasTemporal:               "randomize evaluation ordering across the task window",
	domain.BiasGeographic:             "broaden the evaluator pool across jurisdictions",
	domain.BiasConfirmation:           "interleave task types per evaluator to break answer habits",
	domain.BiasAnchoring:              "withhold earlier evaluations until each evaluator submits",
}

// StoreReports computes the combined report and persists the audit
// trail: one population-level report per signal (user id 0) and one
// clustering report per evaluator. Reports are append-only.
func (a *Analyzer) StoreReports(ctx context.Context, store ports.Store, taskID int64) error {
	report, err := a.Total(ctx, store, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for biasType, score := range report.Signals {
		err := store.SaveBiasReport(ctx, domain.BiasReport{
			ID:           uuid.NewString(),
			TaskID:       taskID,
			UserID:       PopulationUserID,
			BiasType:     biasType,
			BiasScore:    score,
			CalculatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("save %s report for task %d: %w", biasType, taskID, err)
		}
	}

	_, _, entries, err := a.load(ctx, store, taskID)
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{})
	for _, e := range entries {
		if _, done := seen[e.fb.UserID]; done {
			continue
		}
		seen[e.fb.UserID] = struct{}{}

		score, err := a.ProfessionalClustering(ctx, store, taskID, e.fb.UserID)
		if err != nil {
			return err
		}
		err = store.SaveBiasReport(ctx, domain.BiasReport{
			ID:           uuid.NewString(),
			TaskID:       taskID,
			UserID:       e.fb.UserID,
			BiasType:     domain.BiasProfessionalClustering,
			BiasScore:    score,
			CalculatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("save clustering report for user %d: %w", e.fb.UserID, err)
		}
	}
	return nil
}

// modalPosition returns the most frequent position in the group, ties
// broken by the lexically smaller position for determinism.
func modalPosition(group []entry) string {
	counts := make(map[string]int)
	for _, e := range group {
		counts[e.position]++
	}
	var modal string
	best := -1
	for pos, count := range counts {
		if count > best || (count == best && pos < modal) {
			modal, best = pos, count
		}
	}
	return modal
}

// positionFrequencies returns each position's share of the group.
func positionFrequencies(group []entry) map[string]float64 {
	freq := make(map[string]float64)
	if len(group) == 0 {
		return freq
	}
	for _, e := range group {
		freq[e.position]++
	}
	for pos := range freq {
		freq[pos] /= float64(len(group))
	}
	return freq
}
