package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		TimeLimit   time.Duration `env:"SOLVER_TIME_LIMIT" envDefault:"0"`
		Verbose     bool          `env:"SOLVER_VERBOSE" envDefault:"false"`
		WorkerCount int           `env:"SOLVER_WORKER_COUNT" envDefault:"4"`
	}
	Stall struct {
		Enabled      bool          `env:"STALL_ENABLED" envDefault:"true"`
		GapThreshold float64       `env:"STALL_GAP_THRESHOLD" envDefault:"0.0001"`
		MaxDuration  time.Duration `env:"STALL_MAX_DURATION" envDefault:"15s"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}
