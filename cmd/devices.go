package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

func newDevicesCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List and revoke signed-in devices",
	}

	cmd.AddCommand(newDevicesListCmd(app), newDevicesRevokeCmd(app), newDevicesRevokeOthersCmd(app))

	return cmd
}

func newDevicesListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices with an active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := app.auth.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), devices)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderDevices(devices, app.now()))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func newDevicesRevokeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <device-id>",
		Short: "Sign one device out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.auth.RevokeDevice(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Revoked device %s\n", args[0])
			return err
		},
	}
}

func newDevicesRevokeOthersCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-others",
		Short: "Sign out every session except this one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := app.auth.RevokeOtherSessions(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d other session(s)\n", n)
			return err
		},
	}
}

var (
	deviceNameStyle    = lipgloss.NewStyle().Bold(true)
	deviceCurrentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	deviceDetailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func renderDevices(devices []domain.Device, now time.Time) string {
	if len(devices) == 0 {
		return deviceDetailStyle.Render("No active devices")
	}

	lines := make([]string, 0, len(devices))
	for _, d := range devices {
		line := deviceNameStyle.Render(orDefault(d.Name, d.ID))
		if d.Current {
			line += " " + deviceCurrentStyle.Render("(this device)")
		}
		detail := fmt.Sprintf("id: %s  platform: %s  ip: %s", d.ID, orDefault(d.Platform, "n/a"), orDefault(d.IPAddress, "n/a"))
		if d.LastActiveAt != nil {
			detail += "  active: " + now.Sub(*d.LastActiveAt).Round(time.Minute).String() + " ago"
		}
		lines = append(lines, lipgloss.JoinVertical(lipgloss.Left, line, deviceDetailStyle.Render(detail)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
