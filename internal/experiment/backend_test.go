package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/fmchain/internal/config"
	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/logging"
	"github.com/copyleftdev/fmchain/internal/sampler"
)

func TestNewSamplerSimulated(t *testing.T) {
	cfg := &config.Config{}
	cfg.Solver.Backend = config.BackendSimulated
	cfg.Simulated.Seed = 5
	cfg.Simulated.SweepsPerMicro = 10
	cfg.Simulated.MaxSweeps = 100
	cfg.Simulated.BetaFinalPerUnit = 5

	s, err := NewSampler(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, sampler.SimulatedName, s.Name())
}

func TestNewSamplerQPURequiresToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Solver.Backend = config.BackendQPU
	cfg.Solver.Endpoint = "https://example.com/sapi/v2/"

	_, err := NewSampler(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
}

func TestNewSamplerUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Solver.Backend = "gpu"

	_, err := NewSampler(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"gpu"`)
}
