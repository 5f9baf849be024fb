package main

import (
	"github.com/spf13/cobra"
)

var biasTaskID int64

func init() {
	rootCmd.AddCommand(biasCmd)
	biasCmd.Flags().Int64Var(&biasTaskID, "task", 0, "task id to analyze (required)")
	_ = biasCmd.MarkFlagRequired("task")
}

var biasCmd = &cobra.Command{
	Use:   "bias",
	Short: "Compute the combined bias report for one task",
	Long: `Compute all six bias signals over a task's evaluator population and
print the combined report: per-signal scores, the composite level, the
dominant signals, and mitigation recommendations. Read-only; nothing is
persisted.

Examples:
  rlcf bias --task 42`,
	RunE: runBias,
}

func runBias(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.analyzer.Total(ctx, a.store, biasTaskID)
	if err != nil {
		return err
	}
	return printJSON(report)
}
