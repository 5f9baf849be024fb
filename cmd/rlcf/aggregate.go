package main

import (
	"github.com/spf13/cobra"
)

var aggregateTaskID int64

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().Int64Var(&aggregateTaskID, "task", 0, "task id to aggregate (required)")
	_ = aggregateCmd.MarkFlagRequired("task")
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run the full aggregation cycle for one task",
	Long: `Run the three-phase aggregation cycle for a task: aggregate feedback
into a consensus or uncertainty-preserving result, score each feedback's
consistency and correctness, and persist bias reports.

Examples:
  # Aggregate task 42
  rlcf aggregate --task 42

  # Aggregate with a custom scoring configuration
  rlcf aggregate --task 42 --model-config examples/config/model_config.yaml`,
	RunE: runAggregate,
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.orchestrator.Run(ctx, aggregateTaskID)
	if err != nil {
		return err
	}
	return printJSON(result)
}
