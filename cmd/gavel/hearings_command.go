package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gavel/internal/api"
)

func newHearingsCommand(ctx *commandContext) *cobra.Command {
	var committeeFlag string
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "hearings",
		Short: "List tracked hearings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			hearings, err := c.Hearings(cmd.Context(), committeeFlag, statusFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(hearings) == 0 {
				fmt.Fprintln(out, "no hearings found")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "DATE", "COMMITTEE", "TITLE", "STATUS", "SOURCES"},
				hearingRows(hearings, stdoutIsTerminal()),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&committeeFlag, "committee", "", "Filter by committee code")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by pipeline status")
	return cmd
}

func hearingRows(hearings []api.HearingSummary, colorized bool) [][]string {
	rows := make([][]string, 0, len(hearings))
	for _, h := range hearings {
		rows = append(rows, []string{
			h.ID,
			h.Date,
			h.Committee,
			truncate(h.Title, 60),
			colorize(h.Status, colorForStatus(h.Status), colorized),
			strings.Join(h.Sources, ","),
		})
	}
	return rows
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
