// Package domain contains pure, dependency-free domain models and types
// for the consensus engine.
package domain

import (
	"fmt"
	"time"
)

// TaskType discriminates which handler strategy aggregates and scores
// feedback for a task.
type TaskType string

// Supported task types. Each maps to exactly one registered TaskHandler.
const (
	TaskSummarization  TaskType = "SUMMARIZATION"
	TaskClassification TaskType = "CLASSIFICATION"
	TaskQA             TaskType = "QA"
	TaskPrediction     TaskType = "PREDICTION"
	TaskNLI            TaskType = "NLI"
	TaskNER            TaskType = "NER"
	TaskDrafting       TaskType = "DRAFTING"
)

// AllTaskTypes lists every built-in task type in a stable order.
// Useful for registries, validation, and configuration checks.
var AllTaskTypes = []TaskType{
	TaskSummarization,
	TaskClassification,
	TaskQA,
	TaskPrediction,
	TaskNLI,
	TaskNER,
	TaskDrafting,
}

// ParseTaskType converts a raw string into a TaskType.
// It returns ErrUnsupportedTaskType for unknown values so callers can
// surface a typed configuration error instead of silently accepting
// arbitrary strings.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedTaskType, s)
}

// TaskStatus tracks a task through its evaluation lifecycle.
type TaskStatus string

// Task lifecycle states.
const (
	StatusOpen            TaskStatus = "OPEN"
	StatusBlindEvaluation TaskStatus = "BLIND_EVALUATION"
	StatusAggregated      TaskStatus = "AGGREGATED"
	StatusClosed          TaskStatus = "CLOSED"
)

// Credential type keys consumed by authority scoring and bias analysis.
// Additional types may be configured; these are the ones the engine
// itself inspects.
const (
	CredentialProfessionalField      = "PROFESSIONAL_FIELD"
	CredentialProfessionalExperience = "PROFESSIONAL_EXPERIENCE"
	CredentialAcademicDegree         = "ACADEMIC_DEGREE"
	CredentialInstitutionalRole      = "INSTITUTIONAL_ROLE"
)

// NeutralTrackRecord is the starting track-record score for a user with
// no scored feedback. The exponential update moves it toward observed
// quality from this neutral midpoint.
const NeutralTrackRecord = 0.5

// User is an evaluator. The three score fields are maintained exclusively
// by the authority scoring service; AuthorityScore is a cached projection
// of the other two plus recent performance and is recomputed on every
// relevant event.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`

	// AuthorityScore is the composite trust weight applied to this
	// user's feedback during aggregation.
	AuthorityScore float64 `json:"authority_score"`

	// TrackRecordScore is the exponentially smoothed historical
	// feedback-quality average.
	TrackRecordScore float64 `json:"track_record_score"`

	// BaselineCredentialScore is the static contribution from declared
	// qualifications.
	BaselineCredentialScore float64 `json:"baseline_credential_score"`

	Credentials []Credential `json:"credentials,omitempty"`
}

// Credential is a declared qualification owned by exactly one user.
// Value is interpreted per the scoring rule configured for Type.
type Credential struct {
	ID     int64   `json:"id"`
	UserID int64   `json:"user_id"`
	Type   string  `json:"type"`
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// Task is a single evaluation unit of work. Exactly one generated
// Response is associated per task; GroundTruth is present only when
// correctness scoring is possible.
type Task struct {
	ID          int64          `json:"id"`
	Type        TaskType       `json:"task_type"`
	InputData   map[string]any `json:"input_data"`
	GroundTruth map[string]any `json:"ground_truth_data,omitempty"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Response is the AI-generated output evaluators give feedback on.
type Response struct {
	ID           int64          `json:"id"`
	TaskID       int64          `json:"task_id"`
	OutputData   map[string]any `json:"output_data"`
	ModelVersion string         `json:"model_version"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// Feedback is one evaluator's structured assessment of a response.
// FeedbackData's required keys are dictated by the task type's schema.
// ConsistencyScore and CorrectnessScore are computed post-hoc by the
// engine, never supplied by the author.
type Feedback struct {
	ID         int64 `json:"id"`
	UserID     int64 `json:"user_id"`
	ResponseID int64 `json:"response_id"`

	// Author carries the evaluator's identity and authority at load
	// time so handlers can weight positions without extra lookups.
	Author User `json:"author"`

	IsBlindPhase      bool           `json:"is_blind_phase"`
	AccuracyScore     float64        `json:"accuracy_score"`
	UtilityScore      float64        `json:"utility_score"`
	TransparencyScore float64        `json:"transparency_score"`
	FeedbackData      map[string]any `json:"feedback_data"`

	// CommunityHelpfulnessRating is a 1-5 community rating; 0 means unset.
	CommunityHelpfulnessRating int `json:"community_helpfulness_rating"`

	ConsistencyScore *float64 `json:"consistency_score,omitempty"`
	CorrectnessScore *float64 `json:"correctness_score,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// Field returns the named feedback payload entry as a string.
// The second return is false when the key is absent or not a string,
// which callers treat as missing data rather than an error.
func (f Feedback) Field(key string) (string, bool) {
	v, ok := f.FeedbackData[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringSliceField returns the named feedback payload entry as a string
// slice, accepting both []string and []any payload shapes since decoded
// JSON and YAML produce the latter.
func (f Feedback) StringSliceField(key string) ([]string, bool) {
	v, ok := f.FeedbackData[key]
	if !ok {
		return nil, false
	}
	switch vals := v.(type) {
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

// FeedbackRating is a third-party helpfulness rating on a feedback entry,
// scored 1 to 5.
type FeedbackRating struct {
	ID               int64 `json:"id"`
	FeedbackID       int64 `json:"feedback_id"`
	UserID           int64 `json:"user_id"`
	HelpfulnessScore int   `json:"helpfulness_score"`
}

// BiasType tags a bias report with the signal that produced it.
type BiasType string

// Bias signals computed by the bias analyzer.
const (
	BiasProfessionalClustering BiasType = "PROFESSIONAL_CLUSTERING"
	BiasDemographic            BiasType = "DEMOGRAPHIC"
	BiasTemporal               BiasType = "TEMPORAL"
	BiasGeographic             BiasType = "GEOGRAPHIC"
	BiasConfirmation           BiasType = "CONFIRMATION"
	BiasAnchoring              BiasType = "ANCHORING"
)

// BiasReport records one bias signal for a (task, user) pair.
// Reports are append-only; multiple reports per pair accumulate across
// aggregation cycles as an audit trail.
type BiasReport struct {
	ID           string    `json:"id"`
	TaskID       int64     `json:"task_id"`
	UserID       int64     `json:"user_id"`
	BiasType     BiasType  `json:"bias_type"`
	BiasScore    float64   `json:"bias_score"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// ExportFormat selects the shape of training-data export records.
type ExportFormat string

// Supported export formats.
const (
	ExportSFT        ExportFormat = "sft"
	ExportPreference ExportFormat = "preference"
)

// ExportRecord is a single training-data row produced by a handler's
// export formatting. The concrete serialization is owned by external
// export collaborators.
type ExportRecord map[string]any
