// Package application wires the consensus engine together: configuration,
// authority scoring, aggregation with uncertainty preservation, and the
// resilient orchestration of a task's aggregation cycle.
package application

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/formula"
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// ScoringFunction maps a credential's raw value to a numeric score.
// A "map" rule resolves the value through Values with Default as the
// fallback; a "formula" rule evaluates Expression with the value bound
// as the numeric variable `value`.
type ScoringFunction struct {
	Type       string             `yaml:"type" validate:"required,oneof=map formula"`
	Values     map[string]float64 `yaml:"values"`
	Expression string             `yaml:"expression"`
	Default    float64            `yaml:"default"`
}

// CredentialRule configures how one credential type contributes to the
// baseline credential score: a scoring function and an importance weight
// multiplied into the resolved score.
type CredentialRule struct {
	Weight          float64         `yaml:"weight" validate:"min=0"`
	ScoringFunction ScoringFunction `yaml:"scoring_function" validate:"required"`
}

// AuthorityWeights blends the three authority components into the
// composite score.
type AuthorityWeights struct {
	BaselineCredentials float64 `yaml:"baseline_credentials" validate:"min=0"`
	TrackRecord         float64 `yaml:"track_record" validate:"min=0"`
	RecentPerformance   float64 `yaml:"recent_performance" validate:"min=0"`
}

// TrackRecordConfig controls the exponential moving average applied on
// each quality observation.
type TrackRecordConfig struct {
	UpdateFactor float64 `yaml:"update_factor" validate:"gt=0,lte=1"`
}

// Thresholds holds the engine decision cutoffs.
type Thresholds struct {
	// Disagreement is tau: normalized entropy above this value emits an
	// uncertainty-preserving result instead of a collapsed consensus.
	Disagreement float64 `yaml:"disagreement" validate:"min=0,max=1"`
}

// BaselineCredentials configures the per-credential-type scoring rules.
type BaselineCredentials struct {
	Types map[string]CredentialRule `yaml:"types" validate:"dive"`
}

// ScoringConfig is the full scoring configuration document
// (model_config.yaml in the reference deployment). It is reloadable at
// runtime; the engine re-reads it through Settings on every call.
type ScoringConfig struct {
	AuthorityWeights    AuthorityWeights    `yaml:"authority_weights" validate:"required"`
	TrackRecord         TrackRecordConfig   `yaml:"track_record" validate:"required"`
	Thresholds          Thresholds          `yaml:"thresholds" validate:"required"`
	BaselineCredentials BaselineCredentials `yaml:"baseline_credentials"`
}

// DefaultScoringConfig returns the documented default weights: authority
// blend 0.3/0.5/0.2, track-record update factor 0.05, disagreement
// threshold 0.4.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		AuthorityWeights: AuthorityWeights{
			BaselineCredentials: 0.3,
			TrackRecord:         0.5,
			RecentPerformance:   0.2,
		},
		TrackRecord: TrackRecordConfig{UpdateFactor: 0.05},
		Thresholds:  Thresholds{Disagreement: 0.4},
		BaselineCredentials: BaselineCredentials{
			Types: map[string]CredentialRule{},
		},
	}
}

// Validate checks structural constraints and compiles every formula rule
// so malformed expressions are rejected at load time rather than
// degrading silently per credential.
func (c *ScoringConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	for credType, rule := range c.BaselineCredentials.Types {
		fn := rule.ScoringFunction
		switch fn.Type {
		case "map":
			if len(fn.Values) == 0 {
				return fmt.Errorf("%w: map rule for %s has no values", domain.ErrInvalidConfiguration, credType)
			}
		case "formula":
			if _, err := formula.Compile(fn.Expression); err != nil {
				return fmt.Errorf("%w: formula rule for %s: %v", domain.ErrInvalidConfiguration, credType, err)
			}
		}
	}
	return nil
}

// TaskSchema describes one task type's data contract: field names mapped
// to type descriptors in the schema mini-language (str, int, float,
// List[...], Literal[...]).
type TaskSchema struct {
	// InputData describes the task's visible input fields.
	InputData map[string]string `yaml:"input_data"`

	// FeedbackData describes the required feedback payload fields,
	// validated before any feedback reaches a handler.
	FeedbackData map[string]string `yaml:"feedback_data" validate:"required,min=1"`

	// GroundTruthKeys names which input fields are ground truth rather
	// than evaluator-visible input.
	GroundTruthKeys []string `yaml:"ground_truth_keys"`
}

// TaskSchemaConfig is the per-task-type schema document
// (task_config.yaml in the reference deployment).
type TaskSchemaConfig struct {
	TaskTypes map[string]TaskSchema `yaml:"task_types" validate:"required,min=1,dive"`
}

// Validate checks the document and parses every field descriptor so
// mini-language typos surface at load time.
func (c *TaskSchemaConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	for taskType, schema := range c.TaskTypes {
		if _, err := domain.ParseTaskType(taskType); err != nil {
			return fmt.Errorf("%w: schema for %v", domain.ErrInvalidConfiguration, err)
		}
		for _, fields := range []map[string]string{schema.InputData, schema.FeedbackData} {
			for field, typeStr := range fields {
				if _, err := ParseFieldType(typeStr); err != nil {
					return fmt.Errorf("%w: %s.%s: %v", domain.ErrInvalidConfiguration, taskType, field, err)
				}
			}
		}
	}
	return nil
}

// Schema returns the schema for a task type, or false when the type has
// no configured schema.
func (c *TaskSchemaConfig) Schema(taskType domain.TaskType) (TaskSchema, bool) {
	schema, ok := c.TaskTypes[string(taskType)]
	return schema, ok
}

// LoadScoringConfig reads and validates a scoring configuration document.
func LoadScoringConfig(path string) (ScoringConfig, error) {
	var cfg ScoringConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scoring config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadTaskSchemaConfig reads and validates a task schema document.
func LoadTaskSchemaConfig(path string) (TaskSchemaConfig, error) {
	var cfg TaskSchemaConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read task schema config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
