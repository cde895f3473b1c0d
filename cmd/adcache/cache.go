package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts per partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sizes, err := a.Cache.Sizes(ctx)
			if err != nil {
				return err
			}
			total := 0
			rows := make([][]string, 0, len(sizes)+1)
			for _, sz := range sizes {
				rows = append(rows, []string{string(sz.Partition), humanize.Comma(int64(sz.Entries))})
				total += sz.Entries
			}
			rows = append(rows, []string{"total", humanize.Comma(int64(total))})
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"PARTITION", "ENTRIES"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.Cache.Clear(ctx, expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "Expired cache entries cleared: %d\n", n)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "All cache entries cleared: %d\n", n)
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired and malformed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.Sweeper.SweepExpiredCache(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired cache entries.\n", n)
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, sweepCmd)
	return cmd
}
