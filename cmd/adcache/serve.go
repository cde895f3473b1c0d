package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/adcache/pkg/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with background maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			}()
			if listen != "" {
				a.Config.Listen = listen
			}

			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("start maintenance: %w", err)
			}

			a.Log.Info().Str("config", *configPath).Msg("starting adcache")
			return server.New(a).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
