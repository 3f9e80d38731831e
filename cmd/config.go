package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victor2025PH/tgkz2026-sub003/internal/adapters/config"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}

	cmd.AddCommand(newConfigInitCmd(app), newConfigShowCmd(app))

	return cmd
}

func newConfigInitCmd(app *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.DefaultPath(app.home)
			err := config.Write(path, config.Defaults(app.home), force)
			if errors.Is(err, config.ErrConfigExists) {
				return fmt.Errorf("pass --force to overwrite: %w", err)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newConfigShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			encoded, err := config.Encode(app.cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "# %s (transport in use: %s, socket: %s)\n", app.cfg.Path, app.transport.Mode, orDefault(app.transport.SocketURL, "n/a"))
			_, err = out.Write(encoded)
			return err
		},
	}
}
