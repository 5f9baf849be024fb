// Package main implements the rlcf CLI for running aggregation cycles,
// bias reports, and authority recomputations against a SQLite database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arial-it/rlcf/infrastructure/handlers"
	"github.com/arial-it/rlcf/infrastructure/metrics"
	"github.com/arial-it/rlcf/infrastructure/storage"
	"github.com/arial-it/rlcf/internal/application"
	"github.com/arial-it/rlcf/internal/bias"
)

var (
	dbPath      string
	modelConfig string
	taskConfig  string
	version     = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rlcf",
	Short: "Authority-weighted consensus engine for legal AI feedback",
	Long: `rlcf aggregates multi-evaluator feedback on AI legal-reasoning outputs
into authority-weighted consensus results, preserving expert dissent as
alternative positions when disagreement is high.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "rlcf.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&modelConfig, "model-config", "", "scoring configuration YAML (defaults built in)")
	rootCmd.PersistentFlags().StringVar(&taskConfig, "task-config", "", "task schema configuration YAML")
}

// app bundles the wired engine components for one command invocation.
type app struct {
	store        *storage.SQLiteStore
	settings     *application.Settings
	engine       *application.Engine
	authority    *application.AuthorityService
	analyzer     *bias.Analyzer
	orchestrator *application.Orchestrator
	logger       *zap.Logger
}

// buildApp opens the store, loads configuration, and wires the engine.
func buildApp(ctx context.Context) (*app, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	scoring := application.DefaultScoringConfig()
	if modelConfig != "" {
		scoring, err = application.LoadScoringConfig(modelConfig)
		if err != nil {
			return nil, err
		}
	}
	var schemas application.TaskSchemaConfig
	if taskConfig != "" {
		schemas, err = application.LoadTaskSchemaConfig(taskConfig)
		if err != nil {
			return nil, err
		}
	}
	settings := application.NewSettings(scoring, schemas)

	store, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	registry := handlers.NewRegistry()
	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	engine := application.NewEngine(store, registry, settings, recorder, logger)
	analyzer := bias.NewAnalyzer(store, registry, recorder, logger)

	return &app{
		store:        store,
		settings:     settings,
		engine:       engine,
		authority:    application.NewAuthorityService(store, settings, recorder, logger),
		analyzer:     analyzer,
		orchestrator: application.NewOrchestrator(engine, analyzer, store, logger),
		logger:       logger,
	}, nil
}

// close releases the app's resources.
func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
