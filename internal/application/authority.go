package application

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/formula"
	"github.com/arial-it/rlcf/internal/ports"
)

// AuthorityService maintains the three per-user authority components:
// the baseline credential score, the exponentially smoothed track
// record, and the cached composite authority score. The composite is a
// derived projection recomputed on every relevant event; concurrent
// recomputations are last-write-wins by design.
//
// Every method re-reads the Settings object so configuration reloads
// take effect without restarting the engine.
type AuthorityService struct {
	store    ports.Store
	settings *Settings
	metrics  ports.MetricsRecorder
	logger   *zap.Logger
}

// NewAuthorityService creates an AuthorityService. metrics may be nil.
func NewAuthorityService(store ports.Store, settings *Settings, metrics ports.MetricsRecorder, logger *zap.Logger) *AuthorityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorityService{store: store, settings: settings, metrics: metrics, logger: logger}
}

// CalculateBaselineCredentials recomputes and persists a user's baseline
// credential score: for each credential with a configured rule, the
// rule's scoring function resolves the raw value to a score, multiplied
// by the rule weight and summed. Credentials without a matching rule are
// skipped; any scoring failure contributes 0 for that credential only.
//
// A missing user yields (0, domain.ErrUserNotFound) so callers can
// distinguish "no such user" from a computed zero.
func (s *AuthorityService) CalculateBaselineCredentials(ctx context.Context, userID int64) (float64, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	credentials, err := s.store.ListCredentials(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list credentials for user %d: %w", userID, err)
	}

	rules := s.settings.Scoring().BaselineCredentials.Types

	var total float64
	for _, cred := range credentials {
		rule, ok := rules[cred.Type]
		if !ok {
			continue
		}
		total += rule.Weight * s.scoreCredential(rule.ScoringFunction, cred)
	}

	user.BaselineCredentialScore = total
	if err := s.store.UpdateUserScores(ctx, user); err != nil {
		return 0, fmt.Errorf("persist baseline credentials for user %d: %w", userID, err)
	}
	return total, nil
}

// scoreCredential resolves one credential through its scoring function.
// Malformed values and formula failures degrade to 0; they never abort
// the surrounding calculation.
func (s *AuthorityService) scoreCredential(fn ScoringFunction, cred domain.Credential) float64 {
	switch fn.Type {
	case "map":
		if score, ok := fn.Values[cred.Value]; ok {
			return score
		}
		return fn.Default

	case "formula":
		value, err := strconv.ParseFloat(cred.Value, 64)
		if err != nil {
			s.logger.Debug("non-numeric credential value for formula rule",
				zap.String("credential_type", cred.Type),
				zap.String("value", cred.Value))
			return 0
		}
		score, err := formula.Eval(fn.Expression, value)
		if err != nil {
			s.logger.Debug("formula evaluation failed",
				zap.String("credential_type", cred.Type),
				zap.Error(err))
			return 0
		}
		return score
	}
	return 0
}

// CalculateQualityScore computes the aggregate quality of one feedback
// in [0,1] as the mean of four components: third-party helpfulness
// ratings (neutral 0.5 when none exist), the normalized accuracy
// sub-score, the consistency score (0.5 until computed), and the
// community helpfulness rating (falling back to the first component
// when unset). Sub-scores and ratings use a 1-5 scale.
func (s *AuthorityService) CalculateQualityScore(ctx context.Context, fb domain.Feedback) (float64, error) {
	ratings, err := s.store.ListFeedbackRatings(ctx, fb.ID)
	if err != nil {
		return 0, fmt.Errorf("list ratings for feedback %d: %w", fb.ID, err)
	}

	q1 := 0.5
	if len(ratings) > 0 {
		var sum float64
		for _, r := range ratings {
			sum += float64(r.HelpfulnessScore)
		}
		q1 = sum / float64(len(ratings)) / 5.0
	}

	q2 := fb.AccuracyScore / 5.0

	q3 := 0.5
	if fb.ConsistencyScore != nil {
		q3 = *fb.ConsistencyScore
	}

	q4 := q1
	if fb.CommunityHelpfulnessRating > 0 {
		q4 = float64(fb.CommunityHelpfulnessRating) / 5.0
	}

	return (q1 + q2 + q3 + q4) / 4.0, nil
}

// UpdateTrackRecord folds one quality observation into the user's track
// record via an exponential moving average with the configured update
// factor, persists the new value, and returns it. The update has a
// fixed point exactly at quality == current; otherwise each call moves
// the record strictly toward quality.
func (s *AuthorityService) UpdateTrackRecord(ctx context.Context, userID int64, quality float64) (float64, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	alpha := s.settings.Scoring().TrackRecord.UpdateFactor
	user.TrackRecordScore = (1-alpha)*user.TrackRecordScore + alpha*quality

	if err := s.store.UpdateUserScores(ctx, user); err != nil {
		return 0, fmt.Errorf("persist track record for user %d: %w", userID, err)
	}
	return user.TrackRecordScore, nil
}

// UpdateAuthorityScore recomputes and persists the composite authority
// score from the stored baseline and track record plus the supplied
// recent performance, using the configured blend weights.
func (s *AuthorityService) UpdateAuthorityScore(ctx context.Context, userID int64, recentPerformance float64) (float64, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	weights := s.settings.Scoring().AuthorityWeights
	user.AuthorityScore = weights.BaselineCredentials*user.BaselineCredentialScore +
		weights.TrackRecord*user.TrackRecordScore +
		weights.RecentPerformance*recentPerformance

	if err := s.store.UpdateUserScores(ctx, user); err != nil {
		return 0, fmt.Errorf("persist authority score for user %d: %w", userID, err)
	}
	if s.metrics != nil {
		s.metrics.RecordAuthorityUpdate(user.AuthorityScore)
	}
	return user.AuthorityScore, nil
}

// OnFeedbackScored runs the full post-scoring update chain for one
// feedback author: quality, track record, then the composite refresh
// with the quality observation as recent performance.
func (s *AuthorityService) OnFeedbackScored(ctx context.Context, fb domain.Feedback) error {
	quality, err := s.CalculateQualityScore(ctx, fb)
	if err != nil {
		return err
	}
	if _, err := s.UpdateTrackRecord(ctx, fb.UserID, quality); err != nil {
		return err
	}
	_, err = s.UpdateAuthorityScore(ctx, fb.UserID, quality)
	return err
}
