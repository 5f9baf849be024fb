package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arial-it/rlcf/internal/domain"
)

var (
	batchStatus      string
	batchConcurrency int
)

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringVar(&batchStatus, "status", string(domain.StatusBlindEvaluation), "task status to process")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "maximum concurrent aggregation cycles")
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run aggregation cycles for every task in a status",
	Long: `Run the full aggregation cycle for every task currently in the given
status. Cycles run concurrently up to the concurrency limit; a failed
cycle is logged and does not abort the batch.

Examples:
  # Process all tasks awaiting aggregation
  rlcf batch --status BLIND_EVALUATION --concurrency 8`,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.orchestrator.RunAll(ctx, domain.TaskStatus(batchStatus), batchConcurrency)
	if err != nil {
		return err
	}
	fmt.Printf("processed %d tasks\n", len(results))
	return printJSON(results)
}
