package mcp

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/pario-ai/adcache/pkg/codec"
	"github.com/pario-ai/adcache/pkg/metrics"
	"github.com/pario-ai/adcache/pkg/models"
)

type statsArgs struct {
	WindowHours int `json:"window_hours"`
}

type cacheGetArgs struct {
	Partition string `json:"partition"`
	Key       string `json:"key"`
}

type requestKeyArgs struct {
	Inputs []string `json:"inputs"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"adcache_stats":       handleStats,
	"adcache_cache_sizes": handleCacheSizes,
	"adcache_cache_get":   handleCacheGet,
	"adcache_request_key": handleRequestKey,
	"adcache_sweep":       handleSweep,
}

var allTools = []ToolDefinition{
	{
		Name:        "adcache_stats",
		Description: "Show cache hit rate, API cost, image optimization and video generation stats for a time window.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"window_hours": map[string]any{
					"type":        "integer",
					"description": "Window length in hours (optional, defaults to 24)",
				},
			},
		},
	},
	{
		Name:        "adcache_cache_sizes",
		Description: "Show how many entries each cache partition holds.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "adcache_cache_get",
		Description: "Look up one cached result by partition and request key.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"partition", "key"},
			"properties": map[string]any{
				"partition": map[string]any{
					"type":        "string",
					"enum":        []string{string(models.PartitionImageAnalysis), string(models.PartitionVideo), string(models.PartitionGeneration)},
					"description": "Cache partition",
				},
				"key": map[string]any{
					"type":        "string",
					"description": "Request key or content hash",
				},
			},
		},
	},
	{
		Name:        "adcache_request_key",
		Description: "Compute the cache request key for an ordered list of inputs.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"inputs"},
			"properties": map[string]any{
				"inputs": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Request inputs in call order",
				},
			},
		},
	},
	{
		Name:        "adcache_sweep",
		Description: "Remove expired cache entries and metric records past retention.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func handleStats(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args statsArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if args.WindowHours < 0 || args.WindowHours > metrics.MaxWindowHours {
		return errorResult(fmt.Sprintf("window_hours must be between 1 and %d", metrics.MaxWindowHours))
	}
	if args.WindowHours == 0 {
		args.WindowHours = metrics.DefaultWindowHours
	}
	stats, err := s.stats.PerformanceStats(ctx, args.WindowHours)
	if err != nil {
		return errorResult("Error computing stats: " + err.Error())
	}
	return textResult(formatStats(stats, s.stats.UnitCost()))
}

func handleCacheSizes(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	sizes, err := s.cache.Sizes(ctx)
	if err != nil {
		return errorResult("Error reading cache: " + err.Error())
	}
	return textResult(formatSizes(sizes))
}

func handleCacheGet(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args cacheGetArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Partition == "" || args.Key == "" {
		return errorResult("partition and key are required")
	}
	view, err := s.cache.Raw(models.Partition(args.Partition))
	if err != nil {
		return errorResult(err.Error())
	}
	payload, ok := view.Get(ctx, args.Key)
	if !ok {
		return textResult("Cache miss.")
	}
	return textResult(string(payload))
}

func handleRequestKey(_ context.Context, _ *Server, rawArgs json.RawMessage) ToolCallResult {
	var args requestKeyArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if len(args.Inputs) == 0 {
		return errorResult("inputs is required")
	}
	return textResult(codec.RequestKey(args.Inputs...))
}

func handleSweep(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.sweeper == nil {
		return textResult("Maintenance is not configured.")
	}
	res, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return errorResult(formatSweep(res) + "Sweep failed: " + err.Error())
	}
	return textResult(formatSweep(res))
}
