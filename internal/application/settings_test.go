package application

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arial-it/rlcf/internal/domain"
)

func TestSettingsSwap(t *testing.T) {
	settings := NewSettings(DefaultScoringConfig(), TaskSchemaConfig{})
	assert.InDelta(t, 0.4, settings.Scoring().Thresholds.Disagreement, 1e-9)

	next := DefaultScoringConfig()
	next.Thresholds.Disagreement = 0.6
	require.NoError(t, settings.SwapScoring(next))
	assert.InDelta(t, 0.6, settings.Scoring().Thresholds.Disagreement, 1e-9)
}

func TestSettingsSwapRejectsInvalid(t *testing.T) {
	settings := NewSettings(DefaultScoringConfig(), TaskSchemaConfig{})

	bad := DefaultScoringConfig()
	bad.TrackRecord.UpdateFactor = 0

	err := settings.SwapScoring(bad)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	// The previous document stays live.
	assert.InDelta(t, 0.05, settings.Scoring().TrackRecord.UpdateFactor, 1e-9)
}

func TestSettingsSwapSchemasRejectsInvalid(t *testing.T) {
	valid := TaskSchemaConfig{TaskTypes: map[string]TaskSchema{
		"QA": {FeedbackData: map[string]string{"validated_answer": "str"}},
	}}
	settings := NewSettings(DefaultScoringConfig(), valid)

	bad := TaskSchemaConfig{TaskTypes: map[string]TaskSchema{
		"QA": {FeedbackData: map[string]string{"validated_answer": "bogus_type"}},
	}}
	assert.ErrorIs(t, settings.SwapSchemas(bad), domain.ErrInvalidConfiguration)

	_, ok := settings.Schemas().Schema(domain.TaskQA)
	assert.True(t, ok)
}

func TestSettingsReloadFromFile(t *testing.T) {
	settings := NewSettings(DefaultScoringConfig(), TaskSchemaConfig{})
	path := writeConfig(t, validScoringYAML)

	require.NoError(t, settings.ReloadScoringFile(path))
	assert.Contains(t, settings.Scoring().BaselineCredentials.Types, domain.CredentialAcademicDegree)

	// A broken file leaves the last good config in place.
	require.NoError(t, os.WriteFile(path, []byte("{{nope"), 0o644))
	assert.Error(t, settings.ReloadScoringFile(path))
	assert.Contains(t, settings.Scoring().BaselineCredentials.Types, domain.CredentialAcademicDegree)
}

func TestSettingsWatchReloadsOnWrite(t *testing.T) {
	settings := NewSettings(DefaultScoringConfig(), TaskSchemaConfig{})
	path := writeConfig(t, validScoringYAML)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = settings.Watch(ctx, zap.NewNop(), path, "")
	}()

	updated := validScoringYAML + "\n# touched\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := settings.Scoring().BaselineCredentials.Types[domain.CredentialAcademicDegree]
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestSettingsConcurrentAccess(t *testing.T) {
	settings := NewSettings(DefaultScoringConfig(), TaskSchemaConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg := DefaultScoringConfig()
				cfg.Thresholds.Disagreement = 0.5
				_ = settings.SwapScoring(cfg)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tau := settings.Scoring().Thresholds.Disagreement
				assert.True(t, tau == 0.4 || tau == 0.5)
			}
		}()
	}
	wg.Wait()
}
