package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nfewatch/internal/ipc"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect the remote record store",
	}
	recordsCmd.AddCommand(newRecordsStatsCommand(ctx))
	recordsCmd.AddCommand(newRecordsInsertTestCommand(ctx))
	return recordsCmd
}

func newRecordsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stats, err := client.StoreStats()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{"Pending", strconv.Itoa(stats.Pending)},
					{"Completed", strconv.Itoa(stats.Completed)},
					{"Cancelled", strconv.Itoa(stats.Cancelled)},
					{"Total", strconv.Itoa(stats.Total)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newRecordsInsertTestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "insert-test [access-key]",
		Short: "Insert a pending diagnostic record (the store generates a key when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.InsertTest(key)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Inserted record %d (%s)\n", resp.Record.ID, resp.Record.ExternalKey)
				return nil
			})
		},
	}
}
