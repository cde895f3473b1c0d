package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/adcache/pkg/app"
	"github.com/pario-ai/adcache/pkg/config"
	"github.com/pario-ai/adcache/pkg/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "adcache",
		Short:         "adcache - result cache and performance accounting for AI ad generation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")

	open := func(ctx context.Context) (*app.App, error) {
		return openApp(ctx, configPath)
	}

	root.AddCommand(
		newServeCmd(&configPath),
		newStatsCmd(open),
		newCacheCmd(open),
		newMetricsCmd(open),
		newMCPCmd(open),
		newKeyCmd(),
	)
	return root
}

type openFunc func(ctx context.Context) (*app.App, error)

// openApp builds an App for one-shot commands. Logs go to stderr so command
// output stays parseable.
func openApp(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log, os.Stderr)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	return a, nil
}
