package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tgkz",
		Short:         "tgkz: command gateway client for the tgkz backend",
		Long:          "tgkz sends commands to the tgkz backend over the desktop host channel or HTTP, keeps the signed-in session fresh, and streams live socket messages.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentFlags().BoolVar(&app.spinner, "spinner", false, "Show a spinner while waiting on the backend")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return app.restore(cmd.Context())
	}
	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return app.close()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newExecCmd(app),
		newAuthCmd(app),
		newDevicesCmd(app),
		newAccountCmd(app),
		newWatchCmd(app),
	)

	return rootCmd
}
