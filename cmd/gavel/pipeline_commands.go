package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var progressFlag bool

	cmd := &cobra.Command{
		Use:   "capture <hearing-id>",
		Short: "Request pipeline processing for a hearing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			resp, err := c.Capture(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "capture requested, run %s\n", resp.RunID)
			if progressFlag {
				return printProgress(cmd, ctx, args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&progressFlag, "progress", false, "Print progress after requesting capture")

	progressCmd := &cobra.Command{
		Use:   "progress <hearing-id>",
		Short: "Show live progress for a hearing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printProgress(cmd, ctx, args[0])
		},
	}
	cmd.AddCommand(progressCmd)
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <hearing-id>",
		Short: "Cancel a hearing's active pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			if err := c.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cancellation requested")
			return nil
		},
	}
}

func printProgress(cmd *cobra.Command, ctx *commandContext, hearingID string) error {
	c, err := ctx.newClient()
	if err != nil {
		return err
	}
	report, err := c.Progress(cmd.Context(), hearingID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s", report.HearingID, report.Status)
	if report.Stage != "" {
		fmt.Fprintf(out, " (%s)", report.Stage)
	}
	fmt.Fprintf(out, " %.1f%% overall", report.OverallPercent)
	if report.Units != nil {
		fmt.Fprintf(out, ", %d/%d units done", report.Units.Completed, report.Units.Total)
		if report.Units.Failed > 0 {
			fmt.Fprintf(out, " (%d failed)", report.Units.Failed)
		}
	}
	fmt.Fprintln(out)
	if report.FailedStage != "" {
		fmt.Fprintf(out, "  failed at %s: %s\n", report.FailedStage, report.ErrorMessage)
	}
	return nil
}
