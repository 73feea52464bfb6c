package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nfewatch/internal/ipc"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Control record store polling inside the running daemon",
	}

	monitorCmd.AddCommand(newMonitorActionCommand(ctx, "start", "Start polling the record store", (*ipc.Client).MonitorStart))
	monitorCmd.AddCommand(newMonitorActionCommand(ctx, "stop", "Stop polling the record store", (*ipc.Client).MonitorStop))
	monitorCmd.AddCommand(newMonitorActionCommand(ctx, "restart", "Restart polling after the configured delay", (*ipc.Client).MonitorRestart))
	monitorCmd.AddCommand(newMonitorIntervalCommand(ctx))

	return monitorCmd
}

func newMonitorActionCommand(ctx *commandContext, use, short string, action func(*ipc.Client) (*ipc.MonitorResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := action(client)
				if err != nil {
					return err
				}
				return printAction(cmd, ctx, resp)
			})
		},
	}
}

func newMonitorIntervalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "interval <milliseconds>",
		Short: "Change the polling interval (10000 to 3600000 ms)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid interval %q: must be milliseconds", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetInterval(ms)
				if err != nil {
					return err
				}
				return printAction(cmd, ctx, resp)
			})
		},
	}
}

func printAction(cmd *cobra.Command, ctx *commandContext, resp *ipc.MonitorResponse) error {
	if resp == nil {
		return fmt.Errorf("missing daemon response")
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, resp)
	}
	message := resp.Message
	if message == "" {
		message = "ok=" + yesNo(resp.OK)
	}
	fmt.Fprintln(cmd.OutOrStdout(), message)
	return nil
}
