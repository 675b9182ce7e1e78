package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API",
		Long: `Serves the resolver over HTTP until SIGINT or SIGTERM, then drains
in-flight requests and closes the renderer and backends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(appInstance App) error {
				if err := appInstance.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("run server: %w", err)
				}
				return nil
			})
		},
	}
}
