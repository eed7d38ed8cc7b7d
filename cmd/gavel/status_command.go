package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health, source breakers and hearing counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gaveld running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "  database:       %s\n", status.DBPath)
			fmt.Fprintf(out, "  lock file:      %s\n", status.LockFilePath)
			fmt.Fprintf(out, "  pending merges: %d\n", status.PendingMerges)

			if len(status.Sources) > 0 {
				rows := make([][]string, 0, len(status.Sources))
				for _, src := range status.Sources {
					rows = append(rows, []string{src.Name, src.Kind, src.Breaker})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"SOURCE", "KIND", "BREAKER"}, rows))
			}

			if len(status.StatusCounts) > 0 {
				statuses := make([]string, 0, len(status.StatusCounts))
				for s := range status.StatusCounts {
					statuses = append(statuses, s)
				}
				sort.Strings(statuses)
				rows := make([][]string, 0, len(statuses))
				for _, s := range statuses {
					rows = append(rows, []string{s, fmt.Sprintf("%d", status.StatusCounts[s])})
				}
				fmt.Fprintln(out, renderTable([]string{"STATUS", "HEARINGS"}, rows))
			}
			return nil
		},
	}
}
