package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mbellec/optlab/internal/config"
	"github.com/mbellec/optlab/internal/server"
	"github.com/mbellec/optlab/internal/solve/highsbe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return server.Run(context.Background(), cfg, logger, highsbe.New())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
