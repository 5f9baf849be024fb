package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arial-it/rlcf/internal/domain"
)

const validScoringYAML = `
authority_weights:
  baseline_credentials: 0.3
  track_record: 0.5
  recent_performance: 0.2
track_record:
  update_factor: 0.05
thresholds:
  disagreement: 0.4
baseline_credentials:
  types:
    ACADEMIC_DEGREE:
      weight: 0.5
      scoring_function:
        type: map
        values:
          PhD: 1.0
          JD: 0.8
        default: 0.2
    PROFESSIONAL_EXPERIENCE:
      weight: 0.3
      scoring_function:
        type: formula
        expression: "min(value / 20, 1.0)"
`

const validSchemaYAML = `
task_types:
  QA:
    input_data:
      question: str
      context: str
    feedback_data:
      validated_answer: str
      position: Literal['correct', 'incorrect', 'partially_correct']
    ground_truth_keys: [answer]
  CLASSIFICATION:
    input_data:
      text: str
    feedback_data:
      validated_labels: List[str]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScoringConfig(t *testing.T) {
	cfg, err := LoadScoringConfig(writeConfig(t, validScoringYAML))
	require.NoError(t, err)

	assert.InDelta(t, 0.3, cfg.AuthorityWeights.BaselineCredentials, 1e-9)
	assert.InDelta(t, 0.5, cfg.AuthorityWeights.TrackRecord, 1e-9)
	assert.InDelta(t, 0.05, cfg.TrackRecord.UpdateFactor, 1e-9)
	assert.InDelta(t, 0.4, cfg.Thresholds.Disagreement, 1e-9)

	rule := cfg.BaselineCredentials.Types[domain.CredentialAcademicDegree]
	assert.Equal(t, "map", rule.ScoringFunction.Type)
	assert.InDelta(t, 1.0, rule.ScoringFunction.Values["PhD"], 1e-9)
}

func TestLoadScoringConfigRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad formula expression",
			yaml: `
authority_weights: {baseline_credentials: 0.3, track_record: 0.5, recent_performance: 0.2}
track_record: {update_factor: 0.05}
thresholds: {disagreement: 0.4}
baseline_credentials:
  types:
    PROFESSIONAL_EXPERIENCE:
      weight: 0.3
      scoring_function: {type: formula, expression: "os.exit(1)"}
`,
		},
		{
			name: "map rule with no values",
			yaml: `
authority_weights: {baseline_credentials: 0.3, track_record: 0.5, recent_performance: 0.2}
track_record: {update_factor: 0.05}
thresholds: {disagreement: 0.4}
baseline_credentials:
  types:
    ACADEMIC_DEGREE:
      weight: 0.5
      scoring_function: {type: map}
`,
		},
		{
			name: "update factor out of range",
			yaml: `
authority_weights: {baseline_credentials: 0.3, track_record: 0.5, recent_performance: 0.2}
track_record: {update_factor: 1.5}
thresholds: {disagreement: 0.4}
`,
		},
		{
			name: "unknown scoring function type",
			yaml: `
authority_weights: {baseline_credentials: 0.3, track_record: 0.5, recent_performance: 0.2}
track_record: {update_factor: 0.05}
thresholds: {disagreement: 0.4}
baseline_credentials:
  types:
    ACADEMIC_DEGREE:
      weight: 0.5
      scoring_function: {type: lookup}
`,
		},
		{name: "not yaml", yaml: "{{nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScoringConfig(writeConfig(t, tt.yaml))
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestLoadTaskSchemaConfig(t *testing.T) {
	cfg, err := LoadTaskSchemaConfig(writeConfig(t, validSchemaYAML))
	require.NoError(t, err)

	schema, ok := cfg.Schema(domain.TaskQA)
	require.True(t, ok)
	assert.Equal(t, "str", schema.FeedbackData["validated_answer"])
	assert.Equal(t, []string{"answer"}, schema.GroundTruthKeys)

	_, ok = cfg.Schema(domain.TaskNER)
	assert.False(t, ok)
}

func TestLoadTaskSchemaConfigRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown task type",
			yaml: `
task_types:
  TRANSLATION:
    feedback_data: {answer: str}
`,
		},
		{
			name: "unknown field descriptor",
			yaml: `
task_types:
  QA:
    feedback_data: {validated_answer: text}
`,
		},
		{name: "no task types", yaml: "task_types: {}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTaskSchemaConfig(writeConfig(t, tt.yaml))
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestDefaultScoringConfigIsValid(t *testing.T) {
	cfg := DefaultScoringConfig()
	assert.NoError(t, cfg.Validate())
	assert.InDelta(t, 1.0, cfg.AuthorityWeights.BaselineCredentials+
		cfg.AuthorityWeights.TrackRecord+cfg.AuthorityWeights.RecentPerformance, 1e-9)
}
