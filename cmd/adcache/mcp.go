package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/adcache/pkg/mcp"
)

func newMCPCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve stats and cache tools to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("start maintenance: %w", err)
			}

			srv := mcp.New(a.Aggregator, a.Cache, a.Sweeper, a.Log, version)
			return srv.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
