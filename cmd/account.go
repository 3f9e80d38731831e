package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Usage, licenses and invite rewards",
	}

	cmd.AddCommand(newAccountUsageCmd(app), newAccountLicenseCmd(app), newAccountInvitesCmd(app))

	return cmd
}

func newAccountUsageCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show usage statistics for the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var stats json.RawMessage
			err := app.wait(cmd.Context(), cmd.ErrOrStderr(), "Fetching usage...", func(ctx context.Context) error {
				var err error
				stats, err = app.auth.UsageStats(ctx)
				return err
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newAccountLicenseCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "license <key>",
		Short: "Activate a license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.auth.ActivateLicense(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newAccountInvitesCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invites",
		Short: "Show invite rewards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rewards, err := app.auth.InviteRewards(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rewards)
		},
	}
}
