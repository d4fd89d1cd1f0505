package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Sampler backends.
const (
	BackendQPU       = "qpu"
	BackendSimulated = "simulated"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Logging     struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"text"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	// Solver holds the solver API connection. Variable names follow the
	// vendor's own client so existing credentials work unchanged.
	Solver struct {
		Backend         string        `env:"SAMPLER_BACKEND" envDefault:"qpu"`
		Endpoint        string        `env:"DWAVE_API_ENDPOINT" envDefault:"https://na-west-1.cloud.dwavesys.com/sapi/v2/"`
		Token           string        `env:"DWAVE_API_TOKEN"`
		Name            string        `env:"DWAVE_API_SOLVER"`
		Proxy           string        `env:"DWAVE_API_PROXY"`
		RequestTimeout  time.Duration `env:"DWAVE_API_REQUEST_TIMEOUT" envDefault:"60s"`
		PollInterval    time.Duration `env:"DWAVE_API_POLL_INTERVAL" envDefault:"1s"`
		PollMaxInterval time.Duration `env:"DWAVE_API_POLL_MAX_INTERVAL" envDefault:"30s"`
	}
	Simulated struct {
		Seed             int64   `env:"SIMULATED_SEED" envDefault:"0"`
		SweepsPerMicro   float64 `env:"SIMULATED_SWEEPS_PER_US" envDefault:"10"`
		MaxSweeps        int     `env:"SIMULATED_MAX_SWEEPS" envDefault:"20000"`
		BetaFinalPerUnit float64 `env:"SIMULATED_BETA_FINAL" envDefault:"5"`
	}
	Inspector struct {
		Host            string        `env:"INSPECTOR_HOST" envDefault:"127.0.0.1"`
		Port            int           `env:"INSPECTOR_PORT" envDefault:"18000"`
		ShutdownTimeout time.Duration `env:"INSPECTOR_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}
}

// Load parses the environment and checks the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot produce a working sampler.
func (c *Config) Validate() error {
	c.Solver.Backend = strings.ToLower(strings.TrimSpace(c.Solver.Backend))
	switch c.Solver.Backend {
	case BackendQPU:
		if c.Solver.Token == "" {
			return fmt.Errorf("DWAVE_API_TOKEN is required for the %q backend", BackendQPU)
		}
		if _, err := url.Parse(c.Solver.Endpoint); err != nil || c.Solver.Endpoint == "" {
			return fmt.Errorf("invalid DWAVE_API_ENDPOINT %q", c.Solver.Endpoint)
		}
		if c.Solver.Proxy != "" {
			if _, err := url.Parse(c.Solver.Proxy); err != nil {
				return fmt.Errorf("invalid DWAVE_API_PROXY: %w", err)
			}
		}
		if c.Solver.PollInterval <= 0 || c.Solver.PollMaxInterval < c.Solver.PollInterval {
			return fmt.Errorf("poll interval must be positive and not exceed the max poll interval")
		}
	case BackendSimulated:
		if c.Simulated.SweepsPerMicro <= 0 || c.Simulated.MaxSweeps <= 0 {
			return fmt.Errorf("simulated sweeps must be positive")
		}
	default:
		return fmt.Errorf("unknown SAMPLER_BACKEND %q (want %q or %q)", c.Solver.Backend, BackendQPU, BackendSimulated)
	}
	if c.Inspector.Port < 0 || c.Inspector.Port > 65535 {
		return fmt.Errorf("invalid INSPECTOR_PORT %d", c.Inspector.Port)
	}
	return nil
}
