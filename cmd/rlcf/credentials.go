package main

import (
	"github.com/spf13/cobra"
)

var credentialsUserID int64

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.Flags().Int64Var(&credentialsUserID, "user", 0, "user id to recompute (required)")
	_ = credentialsCmd.MarkFlagRequired("user")
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Recompute a user's baseline credential score",
	Long: `Recompute and persist a user's baseline credential score from their
declared credentials and the configured scoring rules, then refresh the
composite authority score from the stored components.

Examples:
  rlcf credentials --user 7 --model-config examples/config/model_config.yaml`,
	RunE: runCredentials,
}

func runCredentials(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	baseline, err := a.authority.CalculateBaselineCredentials(ctx, credentialsUserID)
	if err != nil {
		return err
	}

	user, err := a.store.GetUser(ctx, credentialsUserID)
	if err != nil {
		return err
	}
	authority, err := a.authority.UpdateAuthorityScore(ctx, credentialsUserID, user.TrackRecordScore)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"user_id":                   credentialsUserID,
		"baseline_credential_score": baseline,
		"authority_score":           authority,
	})
}
