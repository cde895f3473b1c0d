package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMetricsCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Maintain recorded performance metrics",
	}

	var days int
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete metric records older than the retention horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.Sweeper.SweepOldMetrics(ctx, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d metric records.\n", n)
			return nil
		},
	}
	sweepCmd.Flags().IntVar(&days, "days", 0, "retention in days (default: metrics.retention_days)")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored metric records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.Recorder.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.AddCommand(sweepCmd, countCmd)
	return cmd
}
