package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

var errInvalidPayload = errors.New("payload is not valid JSON")

func newExecCmd(app *app) *cobra.Command {
	var payload string
	var ttl time.Duration
	var viaSocket bool
	var clearPattern string

	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Send one command to the backend and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("clear-cache") {
				removed := app.gateway.ClearCache(clearPattern)
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "cleared %d cached result(s)\n", removed)
			}

			var body any
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return errInvalidPayload
				}
				body = json.RawMessage(payload)
			}

			command := args[0]
			var result domain.Result
			err := app.wait(cmd.Context(), cmd.ErrOrStderr(), "Running "+command+"...", func(ctx context.Context) error {
				var err error
				switch {
				case viaSocket:
					app.startSocket(ctx)
					result, err = app.gateway.SendOverSocket(ctx, command, body)
				case ttl > 0:
					result, err = app.gateway.ExecuteCached(ctx, command, body, ttl)
				default:
					result, err = app.gateway.Execute(ctx, command, body)
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("%s: %w", command, err)
			}

			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("%s failed: %s", command, orDefault(result.Error, "no error message"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "Command payload as a JSON document")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Serve a cached successful result younger than this")
	cmd.Flags().BoolVar(&viaSocket, "socket", false, "Send over the persistent socket (falls back to HTTP)")
	cmd.Flags().StringVar(&clearPattern, "clear-cache", "", "Drop cached results whose key contains this pattern first")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
