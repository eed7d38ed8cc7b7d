package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <hearing-id>",
		Short: "Show one hearing with its sync audit and pipeline runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			detail, err := c.Hearing(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			h := detail.Hearing
			colorized := stdoutIsTerminal()

			fmt.Fprintf(out, "%s\n", h.Title)
			fmt.Fprintf(out, "  id:         %s\n", h.ID)
			fmt.Fprintf(out, "  committee:  %s\n", h.Committee)
			fmt.Fprintf(out, "  date:       %s\n", h.Date)
			if h.Type != "" {
				fmt.Fprintf(out, "  type:       %s\n", h.Type)
			}
			fmt.Fprintf(out, "  status:     %s\n", colorize(h.Status, colorForStatus(h.Status), colorized))
			fmt.Fprintf(out, "  confidence: %.2f\n", h.SyncConfidence)
			if len(h.Sources) > 0 {
				fmt.Fprintf(out, "  sources:    %v\n", h.Sources)
			}
			if h.MediaURL != "" {
				fmt.Fprintf(out, "  media:      %s\n", h.MediaURL)
			}
			if h.DocumentURL != "" {
				fmt.Fprintf(out, "  documents:  %s\n", h.DocumentURL)
			}
			if h.FailedStage != "" {
				fmt.Fprintf(out, "  failed at:  %s (%s)\n", h.FailedStage, h.ErrorMessage)
			}

			if len(detail.Runs) > 0 {
				rows := make([][]string, 0, len(detail.Runs))
				for _, run := range detail.Runs {
					state := "completed"
					switch {
					case run.Cancelled:
						state = "cancelled"
					case run.ErrorStage != "":
						state = "failed at " + run.ErrorStage
					}
					rows = append(rows, []string{run.ID, run.CreatedAt, state})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"RUN", "STARTED", "OUTCOME"}, rows))
			}

			if len(detail.Audit) > 0 {
				rows := make([][]string, 0, len(detail.Audit))
				for _, entry := range detail.Audit {
					rows = append(rows, []string{
						entry.CreatedAt,
						entry.Source,
						entry.Decision,
						fmt.Sprintf("%.2f", entry.Confidence),
						truncate(entry.Detail, 50),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"WHEN", "SOURCE", "DECISION", "CONFIDENCE", "DETAIL"}, rows))
			}
			return nil
		},
	}
}
