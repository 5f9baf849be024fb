package application

import (
	"context"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Settings holds the live configuration behind atomic pointers so a
// reload swaps a fully validated document in one step and concurrent
// callers never observe a half-updated configuration. Engine entry
// points call Scoring()/Schemas() on every invocation instead of
// caching the returned pointer.
type Settings struct {
	scoring atomic.Pointer[ScoringConfig]
	schemas atomic.Pointer[TaskSchemaConfig]
}

// NewSettings creates a Settings holding the given documents.
func NewSettings(scoring ScoringConfig, schemas TaskSchemaConfig) *Settings {
	s := &Settings{}
	s.scoring.Store(&scoring)
	s.schemas.Store(&schemas)
	return s
}

// Scoring returns the current scoring configuration. The returned
// pointer must not be retained across calls or mutated.
func (s *Settings) Scoring() *ScoringConfig { return s.scoring.Load() }

// Schemas returns the current task schema configuration. The returned
// pointer must not be retained across calls or mutated.
func (s *Settings) Schemas() *TaskSchemaConfig { return s.schemas.Load() }

// SwapScoring atomically replaces the scoring configuration after
// validating it. The previous document stays live on validation failure.
func (s *Settings) SwapScoring(cfg ScoringConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.scoring.Store(&cfg)
	return nil
}

// SwapSchemas atomically replaces the task schema configuration after
// validating it.
func (s *Settings) SwapSchemas(cfg TaskSchemaConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.schemas.Store(&cfg)
	return nil
}

// ReloadScoringFile re-reads the scoring document from disk and swaps
// it in; the previous document stays live on any failure.
func (s *Settings) ReloadScoringFile(path string) error {
	cfg, err := LoadScoringConfig(path)
	if err != nil {
		return err
	}
	s.scoring.Store(&cfg)
	return nil
}

// ReloadSchemaFile re-reads the task schema document from disk and
// swaps it in.
func (s *Settings) ReloadSchemaFile(path string) error {
	cfg, err := LoadTaskSchemaConfig(path)
	if err != nil {
		return err
	}
	s.schemas.Store(&cfg)
	return nil
}

// Watch reloads configuration files when they change on disk, until ctx
// is cancelled. Reload failures are logged and the previous documents
// stay live; the watcher keeps running. Blocks the calling goroutine.
func (s *Settings) Watch(ctx context.Context, logger *zap.Logger, scoringPath, schemaPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, path := range []string{scoringPath, schemaPath} {
		if path == "" {
			continue
		}
		if err := watcher.Add(path); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			var reloadErr error
			switch event.Name {
			case scoringPath:
				reloadErr = s.ReloadScoringFile(scoringPath)
			case schemaPath:
				reloadErr = s.ReloadSchemaFile(schemaPath)
			default:
				continue
			}
			if reloadErr != nil {
				logger.Warn("config reload failed, keeping previous settings",
					zap.String("path", event.Name),
					zap.Error(reloadErr))
				continue
			}
			logger.Info("config reloaded", zap.String("path", event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
