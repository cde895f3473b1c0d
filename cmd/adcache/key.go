package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/adcache/pkg/codec"
)

func newKeyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "key [inputs...]",
		Short: "Print the request key for inputs, or the content hash of a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), codec.HashContent(data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), codec.RequestKey(args...))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "hash this file's content (image-analysis key)")
	return cmd
}
