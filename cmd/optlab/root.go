package main

import (
	"github.com/spf13/cobra"

	"github.com/mbellec/optlab/internal/logging"
)

var (
	logLevel string
	logger   *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "optlab",
	Short: "Optimization exercises with stall-aware solving",
	Long: `optlab formulates a set of optimization exercises, hands them to an
external solver and watches the optimality gap: when the gap stops
improving for too long, the solve is cut short and the incumbent kept.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.NewLogger(&logging.Config{
			Level:  logLevel,
			Format: "json",
			Output: "stderr",
		})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}
