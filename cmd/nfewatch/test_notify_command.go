package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nfewatch/internal/ipc"
)

// newTestNotifyCommand asks the daemon to publish a test event through the
// same ntfy path used for exhausted retries and watch timeouts.
func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Publish a test event to the daemon's ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return fmt.Errorf("publish test event: %w", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				kind := statusWarn
				if resp.Sent {
					kind = statusOK
				}
				fmt.Fprintln(out, renderStatusLine("Notifications", kind, resp.Message, shouldColorize(out)))
				if !resp.Sent {
					fmt.Fprintln(out, "Set notifications.ntfy_topic to receive retry and timeout alerts.")
				}
				return nil
			})
		},
	}
}
