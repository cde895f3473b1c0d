package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pario-ai/adcache/pkg/metrics"
	"github.com/pario-ai/adcache/pkg/models"
)

func newStatsCmd(open openFunc) *cobra.Command {
	var (
		window  int
		asJSON  bool
		perCall bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache economics and generation statistics for a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := a.Aggregator.PerformanceStats(ctx, window)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			printStats(out, stats)
			if perCall && len(stats.APICalls.ByEndpoint) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, endpointTable(stats.APICalls.ByEndpoint))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&window, "window", "w", metrics.DefaultWindowHours, "window in hours")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	cmd.Flags().BoolVar(&perCall, "endpoints", false, "break API calls down by endpoint")
	return cmd
}

func printStats(w io.Writer, s models.PerformanceStats) {
	if s.TotalMetrics == 0 {
		fmt.Fprintf(w, "No metrics recorded in the last %dh.\n", s.WindowHours)
		return
	}

	pct := func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + "%" }
	usd := func(v float64) string { return "$" + strconv.FormatFloat(v, 'f', 4, 64) }
	n := func(v int) string { return humanize.Comma(int64(v)) }

	rows := [][]string{
		{"Window", fmt.Sprintf("%dh (since %s)", s.WindowHours, humanize.Time(s.From))},
		{"Metrics", n(s.TotalMetrics)},
		{"API calls", fmt.Sprintf("%s (%s ok, %s failed)", n(s.APICalls.Total), n(s.APICalls.Successful), n(s.APICalls.Failed))},
		{"Avg call duration", fmt.Sprintf("%.0f ms", s.APICalls.AverageDurationMs)},
		{"Cache hits / misses", n(s.Cache.Hits) + " / " + n(s.Cache.Misses)},
		{"Hit rate", pct(s.Cache.HitRate)},
		{"Total cost", usd(s.APICalls.TotalCost)},
		{"Cost saved", usd(s.Cache.CostSaved)},
	}
	if opt := s.ImageOptimization; opt.Count > 0 {
		rows = append(rows,
			[]string{"Images optimized", n(opt.Count)},
			[]string{"Bytes saved", humanize.Bytes(uint64(max(opt.TotalSavings, 0)))},
			[]string{"Avg ratio (optimized/original)", strconv.FormatFloat(opt.AverageCompressionRatio, 'f', 3, 64)},
			[]string{"Avg size saved", pct(opt.PercentSaved())},
		)
	}
	if v := s.VideoGeneration; v.Total > 0 {
		rows = append(rows,
			[]string{"Videos generated", fmt.Sprintf("%s (%s ok)", n(v.Total), n(v.Successful))},
			[]string{"Video success rate", pct(v.SuccessRate)},
			[]string{"Avg video duration", fmt.Sprintf("%.1f s", v.AverageDurationSeconds)},
		)
	}
	for _, action := range slices.Sorted(maps.Keys(s.UserActions)) {
		rows = append(rows, []string{"Action: " + action, n(s.UserActions[action])})
	}

	fmt.Fprintln(w, renderTable([]string{"METRIC", "VALUE"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func endpointTable(eps []models.EndpointStats) string {
	rows := make([][]string, 0, len(eps))
	for _, e := range eps {
		rows = append(rows, []string{
			e.Endpoint,
			humanize.Comma(int64(e.Calls)),
			humanize.Comma(int64(e.Hits)),
			humanize.Comma(int64(e.Misses)),
			fmt.Sprintf("%.0f", e.AverageDurationMs),
			"$" + strconv.FormatFloat(e.Cost, 'f', 4, 64),
		})
	}
	return renderTable(
		[]string{"ENDPOINT", "CALLS", "HITS", "MISSES", "AVG MS", "COST"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}
