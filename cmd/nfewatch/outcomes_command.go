package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nfewatch/internal/api"
	"nfewatch/internal/ipc"
)

func newOutcomesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var kinds []string

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "List journaled outcomes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Outcomes(ipc.OutcomesRequest{Limit: limit, Kinds: kinds})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if len(resp.Outcomes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No outcomes recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"When", "Record", "Key", "Outcome", "Attempts", "Message"},
					outcomeRows(resp.Outcomes),
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum outcomes to show")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Filter by outcome kind (completed, failed, malformed, timed_out)")
	return cmd
}

func outcomeRows(outcomes []api.Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		rows = append(rows, []string{
			outcome.CreatedAt,
			strconv.FormatInt(outcome.RecordID, 10),
			outcome.ExternalKey,
			humanLabel(outcome.Kind),
			strconv.Itoa(outcome.Attempts),
			outcome.Message,
		})
	}
	return rows
}
