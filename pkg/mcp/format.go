package mcp

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pario-ai/adcache/pkg/models"
	"github.com/pario-ai/adcache/pkg/sweeper"
)

func formatStats(st models.PerformanceStats, unitCost float64) string {
	if st.TotalMetrics == 0 {
		return fmt.Sprintf("No metrics recorded in the last %d hours.", st.WindowHours)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Performance (last %d hours, %d metrics)\n", st.WindowHours, st.TotalMetrics)
	fmt.Fprintf(&b, "Cache\n  Hits:       %d\n  Misses:     %d\n  Hit Rate:   %.1f%%\n  Cost Saved: $%.4f\n",
		st.Cache.Hits, st.Cache.Misses, st.Cache.HitRate, st.Cache.CostSaved)
	fmt.Fprintf(&b, "API Calls\n  Total:      %d (%d failed)\n  Avg Time:   %.1f ms\n  Total Cost: $%.4f at $%.4f/call\n",
		st.APICalls.Total, st.APICalls.Failed, st.APICalls.AverageDurationMs, st.APICalls.TotalCost, unitCost)
	if len(st.APICalls.ByEndpoint) > 0 {
		fmt.Fprintf(&b, "  %-28s %6s %6s %6s\n", "Endpoint", "Calls", "Hits", "Misses")
		for _, e := range st.APICalls.ByEndpoint {
			fmt.Fprintf(&b, "  %-28s %6d %6d %6d\n", e.Endpoint, e.Calls, e.Hits, e.Misses)
		}
	}
	if opt := st.ImageOptimization; opt.Count > 0 {
		fmt.Fprintf(&b, "Image Optimization\n  Images:     %d\n  Saved:      %s (%.1f%%)\n",
			opt.Count, humanize.Bytes(uint64(max(opt.TotalSavings, 0))), opt.PercentSaved())
	}
	if v := st.VideoGeneration; v.Total > 0 {
		fmt.Fprintf(&b, "Video Generation\n  Renders:    %d (%.1f%% succeeded)\n  Avg Time:   %.1f s\n",
			v.Total, v.SuccessRate, v.AverageDurationSeconds)
	}
	if len(st.UserActions) > 0 {
		b.WriteString("User Actions\n")
		for _, name := range slices.Sorted(maps.Keys(st.UserActions)) {
			fmt.Fprintf(&b, "  %-20s %d\n", name, st.UserActions[name])
		}
	}
	return b.String()
}

func formatSizes(sizes []models.PartitionSize) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %8s\n", "Partition", "Entries")
	b.WriteString(strings.Repeat("-", 25) + "\n")
	total := 0
	for _, sz := range sizes {
		fmt.Fprintf(&b, "%-16s %8d\n", sz.Partition, sz.Entries)
		total += sz.Entries
	}
	fmt.Fprintf(&b, "%-16s %8d\n", "total", total)
	return b.String()
}

func formatSweep(res sweeper.Result) string {
	return fmt.Sprintf("Removed %d cache entries and %d metric records.\n", res.Cache, res.Metrics)
}
