package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMergesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merges",
		Short: "Review hearings flagged as possible duplicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			candidates, err := c.PendingMerges(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				fmt.Fprintln(out, "no pending merge candidates")
				return nil
			}

			rows := make([][]string, 0, len(candidates))
			for _, candidate := range candidates {
				rows = append(rows, []string{
					strconv.FormatInt(candidate.ID, 10),
					fmt.Sprintf("%.2f", candidate.Confidence),
					recordLabel(candidate.RecordA.Source, candidate.RecordA.Title, candidate.RecordA.Date),
					recordLabel(candidate.RecordB.Source, candidate.RecordB.Title, candidate.RecordB.Date),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "CONFIDENCE", "RECORD A", "RECORD B"}, rows))
			fmt.Fprintln(out, "resolve with: gavel merges resolve <id> <merge|keep_separate>")
			return nil
		},
	}

	cmd.AddCommand(newMergesResolveCommand(ctx))
	return cmd
}

func newMergesResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "resolve <id> <merge|keep_separate>",
		Short:     "Apply a review decision to a pending merge candidate",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"merge", "keep_separate"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid candidate id %q", args[0])
			}
			action := args[1]
			if action != "merge" && action != "keep_separate" {
				return fmt.Errorf("action must be merge or keep_separate, got %q", action)
			}

			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			resp, err := c.Resolve(cmd.Context(), id, action)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "candidate %d resolved: %s (hearing %s)\n", id, resp.Decision, resp.HearingID)
			return nil
		},
	}
}

func recordLabel(source, title, date string) string {
	label := source + ": " + truncate(title, 40)
	if date != "" {
		label += " @ " + date
	}
	return label
}
