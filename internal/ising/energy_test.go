package ising

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergy(t *testing.T) {
	fm, err := NewFerromagneticChain(4)
	require.NoError(t, err)

	tests := []struct {
		name   string
		model  *Model
		sample []int8
		energy float64
		walls  int
	}{
		{"fm all up", fm, []int8{1, 1, 1, 1}, -3, 0},
		{"fm all down", fm, []int8{-1, -1, -1, -1}, -3, 0},
		{"fm one wall", fm, []int8{1, 1, -1, -1}, -1, 1},
		{"fm alternating", fm, []int8{1, -1, 1, -1}, 3, 3},
		{
			name:   "biases and couplings",
			model:  mustChain(t, 3, []float64{1, 0, -1}, 0.5),
			sample: []int8{1, -1, -1},
			// h: 1*1 + 0 + (-1)(-1) = 2, J: 0.5*(1*-1) + 0.5*(-1*-1) = 0
			energy: 2,
			walls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := tt.model.Energy(tt.sample)
			require.NoError(t, err)
			assert.InDelta(t, tt.energy, e, 1e-12)

			walls, err := tt.model.Unsatisfied(tt.sample)
			require.NoError(t, err)
			assert.Equal(t, tt.walls, walls)
		})
	}
}

func TestEnergyRejectsBadSamples(t *testing.T) {
	m, _ := NewFerromagneticChain(3)

	_, err := m.Energy([]int8{1, 1})
	assert.Error(t, err, "short sample")

	_, err = m.Energy([]int8{1, 0, 1})
	assert.Error(t, err, "zero is not a spin")

	_, err = m.Energies([][]int8{{1, 1, 1}, {3, 1, 1}})
	assert.Error(t, err)
}

func TestEnergies(t *testing.T) {
	m, _ := NewFerromagneticChain(3)
	got, err := m.Energies([][]int8{{1, 1, 1}, {1, -1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 2}, got)
}

func TestEnergyWithoutCouplings(t *testing.T) {
	m := NewModel(2)
	m.Linear[0] = 1.5
	e, err := m.Energy([]int8{-1, 1})
	require.NoError(t, err)
	assert.Equal(t, -1.5, e)
}

func TestChainGroundEnergy(t *testing.T) {
	afm, _ := NewChain(5, nil, 1)
	e, ok := afm.ChainGroundEnergy()
	assert.True(t, ok)
	assert.Equal(t, -4.0, e)

	biased, _ := NewChain(3, []float64{0, 1, 0}, -1)
	_, ok = biased.ChainGroundEnergy()
	assert.False(t, ok)

	disconnected := NewModel(4)
	disconnected.SetCoupling(0, 1, -1)
	disconnected.SetCoupling(0, 2, -1)
	disconnected.SetCoupling(1, 2, -1)
	_, ok = disconnected.ChainGroundEnergy()
	assert.False(t, ok, "triangle plus an isolated spin has n-1 edges but is not a tree")
}

func mustChain(t *testing.T, n int, h []float64, j float64) *Model {
	t.Helper()
	m, err := NewChain(n, h, j)
	require.NoError(t, err)
	return m
}
