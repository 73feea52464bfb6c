package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nfewatch/internal/api"
	"nfewatch/internal/ipc"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List running tasks and awaited processed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Tasks()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Running Tasks", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(stdout, "No running tasks")
				} else {
					fmt.Fprint(stdout, renderTable(
						[]string{"Task", "Record", "Key", "Attempt", "Elapsed"},
						taskRows(resp.Tasks),
						[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight},
					))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Awaiting Authorization", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(resp.Waiting) == 0 {
					fmt.Fprintln(stdout, "No files awaited")
				} else {
					fmt.Fprint(stdout, renderTable(waitingHeaders, waitingRows(resp.Waiting), waitingAligns))
				}

				if len(resp.TimedOut) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Timed Out", colorize) {
						fmt.Fprintln(stdout, line)
					}
					fmt.Fprint(stdout, renderTable(waitingHeaders, waitingRows(resp.TimedOut), waitingAligns))
				}
				return nil
			})
		},
	}
}

var (
	waitingHeaders = []string{"Record", "Entity", "Expected file", "Waiting", "Rejections"}
	waitingAligns  = []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight}
)

func taskRows(tasks []api.RunningTask) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.ID,
			strconv.FormatInt(task.RecordID, 10),
			task.ExternalKey,
			strconv.Itoa(task.Attempt),
			formatMillis(task.ElapsedMS),
		})
	}
	return rows
}

func waitingRows(files []api.WaitingFile) [][]string {
	rows := make([][]string, 0, len(files))
	for _, file := range files {
		rows = append(rows, []string{
			strconv.FormatInt(file.RecordID, 10),
			file.SubIdentifier,
			file.ExpectedPath,
			formatMillis(file.WaitingMS),
			strconv.Itoa(file.Rejections),
		})
	}
	return rows
}
