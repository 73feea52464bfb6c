package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nfewatch/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var recordID int64

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				req := ipc.LogTailRequest{Offset: -1, Limit: lines, RecordID: recordID}
				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return err
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(out, line)
					}
					if !follow {
						return nil
					}
					req.Offset = resp.Offset
					req.Follow = true
					req.WaitMillis = int(time.Second / time.Millisecond)

					select {
					case <-cmd.Context().Done():
						return nil
					default:
					}
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().Int64Var(&recordID, "record", 0, "Only show lines for this record id")
	return cmd
}
