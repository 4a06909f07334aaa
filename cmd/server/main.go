package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mbellec/optlab/internal/config"
	"github.com/mbellec/optlab/internal/logging"
	"github.com/mbellec/optlab/internal/server"
	"github.com/mbellec/optlab/internal/solve/highsbe"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use standard logger as fallback if config loading fails
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize base logger
	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := server.Run(context.Background(), cfg, logger, highsbe.New()); err != nil {
		logger.Fatal("server exited", map[string]interface{}{"error": err.Error()})
	}
}
