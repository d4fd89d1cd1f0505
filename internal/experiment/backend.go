package experiment

import (
	"context"

	"github.com/copyleftdev/fmchain/internal/config"
	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/logging"
	"github.com/copyleftdev/fmchain/internal/sampler"
	"github.com/copyleftdev/fmchain/internal/sapi"
)

// NewSampler builds the sampler the configuration selects. The QPU backend
// picks the least loaded solver, or the one named by DWAVE_API_SOLVER.
func NewSampler(ctx context.Context, cfg *config.Config, logger *logging.Logger) (sampler.Sampler, error) {
	switch cfg.Solver.Backend {
	case config.BackendSimulated:
		return sampler.NewSimulatedAnnealer(
			sampler.WithSeed(cfg.Simulated.Seed),
			sampler.WithSweeps(cfg.Simulated.SweepsPerMicro, cfg.Simulated.MaxSweeps),
			sampler.WithBetaRange(0.1, cfg.Simulated.BetaFinalPerUnit),
		), nil
	case config.BackendQPU:
		client, err := NewClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		filter := sapi.QPUOnly()
		filter.Name = cfg.Solver.Name
		s, err := client.Sampler(ctx, filter)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, apperrors.Errorf("unknown sampler backend %q", cfg.Solver.Backend).
			WithComponent(component).WithOperation("NewSampler").WithKind(apperrors.KindInvalid)
	}
}

// NewClient builds a solver API client from the configuration.
func NewClient(cfg *config.Config, logger *logging.Logger) (*sapi.Client, error) {
	return sapi.NewClient(sapi.Options{
		Endpoint:        cfg.Solver.Endpoint,
		Token:           cfg.Solver.Token,
		Proxy:           cfg.Solver.Proxy,
		RequestTimeout:  cfg.Solver.RequestTimeout,
		PollInterval:    cfg.Solver.PollInterval,
		PollMaxInterval: cfg.Solver.PollMaxInterval,
		Logger:          logging.NewZapLogger(logger),
	})
}
