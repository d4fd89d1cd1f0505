package experiment

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/ising"
	"github.com/copyleftdev/fmchain/internal/sampler"
	"github.com/copyleftdev/fmchain/internal/schedule"
)

func TestDefaultProblem(t *testing.T) {
	e := Default()
	m, err := e.Model()
	require.NoError(t, err)

	// One coupling per adjacent pair, all -1.
	require.Len(t, m.Quadratic, 9)
	for i := 0; i < 9; i++ {
		j, ok := m.Coupling(i, i+1)
		require.True(t, ok, "missing coupling (%d, %d)", i, i+1)
		assert.Equal(t, -1.0, j)
	}
	// Ten zero biases.
	assert.Equal(t, make([]float64, 10), m.Linear)

	p := e.Params()
	assert.Equal(t, 100, p.NumReads)
	assert.Nil(t, p.AnnealingTime)
	assert.Equal(t, schedule.Schedule{{Time: 0, S: 0}, {Time: 20, S: 1}}, p.AnnealSchedule)
	require.NoError(t, p.AnnealSchedule.Validate())
	require.NoError(t, e.Validate())
}

func TestParamsNeverCarryBothTimings(t *testing.T) {
	e := Default().WithAnnealingTime(50)
	p := e.Params()
	require.NotNil(t, p.AnnealingTime)
	assert.Equal(t, 50.0, *p.AnnealingTime)
	assert.Nil(t, p.AnnealSchedule)

	e = e.WithAnnealSchedule(schedule.WithQuench(5, 0.3, 1))
	p = e.Params()
	assert.Nil(t, p.AnnealingTime)
	assert.Len(t, p.AnnealSchedule, 3)

	both := Default()
	at := 20.0
	both.AnnealingTime = &at
	err := both.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, sampler.ErrConflictingTiming)
}

func TestWithAnnealingTimeCopies(t *testing.T) {
	base := Default()
	_ = base.WithAnnealingTime(5)
	assert.Nil(t, base.AnnealingTime)
	assert.NotNil(t, base.AnnealSchedule)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, e *Experiment)
	}{
		{
			name:  "empty keeps defaults",
			input: "",
			check: func(t *testing.T, e *Experiment) {
				assert.Equal(t, Default(), e)
			},
		},
		{
			name:  "annealing time replaces default schedule",
			input: "annealing_time: 200\nnum_reads: 1000\n",
			check: func(t *testing.T, e *Experiment) {
				require.NotNil(t, e.AnnealingTime)
				assert.Equal(t, 200.0, *e.AnnealingTime)
				assert.Nil(t, e.AnnealSchedule)
				assert.Equal(t, 1000, e.NumReads)
			},
		},
		{
			name:  "bias and strength",
			input: "num_qubits: 4\nqubit_bias: 0.25\ncoupler_strength: 0.5\n",
			check: func(t *testing.T, e *Experiment) {
				m, err := e.Model()
				require.NoError(t, err)
				assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, m.Linear)
				j, _ := m.Coupling(2, 3)
				assert.Equal(t, 0.5, j)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"both timings":    "annealing_time: 20\nanneal_schedule: [[0, 0], [20, 1]]\n",
		"bad start":       "anneal_schedule: [[1, 0], [20, 1]]\n",
		"time order":      "anneal_schedule: [[0, 0], [20, 0.5], [10, 1]]\n",
		"progress order":  "anneal_schedule: [[0, 0], [10, 0.6], [20, 0.4]]\n",
		"one qubit":       "num_qubits: 1\n",
		"no reads":        "num_reads: 0\n",
		"malformed point": "anneal_schedule: [[0, 0, 0]]\n",
		"not yaml":        "num_qubits: [\n",
		"nan time":        "annealing_time: .nan\n",
		"infinite time":   "annealing_time: .inf\n",
		"nan progress":    "anneal_schedule: [[0, 0], [10, .nan], [20, 1]]\n",
		"nan bias":        "qubit_bias: .nan\n",
		"inf coupling":    "coupler_strength: -.inf\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
		})
	}
}

func TestLoad(t *testing.T) {
	e, err := Load(filepath.Join("testdata", "paused.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8, e.NumQubits)
	assert.Equal(t, -0.5, e.CouplerStrength)
	assert.Equal(t, 40, e.NumReads)
	assert.Equal(t, schedule.WithPause(10, 0.4, 50, 70), e.AnnealSchedule)

	_, err = Load(filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
}

func TestRunSimulated(t *testing.T) {
	e := Default()
	e.NumReads = 50
	s := sampler.NewSimulatedAnnealer(sampler.WithSeed(11), sampler.WithSweeps(50, 0))

	res, err := e.Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, sampler.SimulatedName, res.Solver)
	assert.Equal(t, 50, res.SampleSet.NumReads())
	assert.Equal(t, -9.0, res.Summary.GroundEnergy)
	assert.Greater(t, res.Summary.GroundFraction, 0.5)
	assert.LessOrEqual(t, res.Summary.LowestEnergy, res.Summary.MeanEnergy)
	assert.Equal(t, "anneal_schedule=[(0, 0), (20, 1)]", res.Summary.Timing)
}

func TestRunRejectsInvalidExperiment(t *testing.T) {
	e := Default()
	e.NumReads = -1
	_, err := e.Run(context.Background(), sampler.NewSimulatedAnnealer())
	require.Error(t, err)
	assert.ErrorIs(t, err, sampler.ErrInvalidReads)
}

func TestSweep(t *testing.T) {
	s := sampler.NewSimulatedAnnealer(sampler.WithSeed(3))
	e := Default()
	e.NumReads = 10

	out, err := e.Sweep(context.Background(), s, []float64{1, 20})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "annealing_time=1us", out[0].Timing)
	assert.Equal(t, "annealing_time=20us", out[1].Timing)

	_, err = e.Sweep(context.Background(), s, nil)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	m, err := ising.NewFerromagneticChain(3)
	require.NoError(t, err)
	ss, err := sampler.NewSampleSet(
		[]int{0, 1, 2},
		[][]int8{{1, 1, 1}, {1, 1, -1}, {1, -1, 1}},
		[]float64{-2, 0, 2},
		[]int{2, 1, 1},
		nil,
	)
	require.NoError(t, err)

	sum, err := Summarize(m, ss, "default")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.NumReads)
	assert.Equal(t, 3, sum.Distinct)
	assert.Equal(t, -2.0, sum.LowestEnergy)
	assert.Equal(t, 0.5, sum.GroundFraction)
	assert.InDelta(t, -0.5, sum.MeanEnergy, 1e-12)
	// Walls: 0, 1, 2 weighted 2, 1, 1.
	assert.InDelta(t, 0.75, sum.MeanDomainWalls, 1e-12)

	biased, err := ising.NewChain(3, []float64{1, 0, 0}, -1)
	require.NoError(t, err)
	sum, err = Summarize(biased, ss, "default")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(sum.GroundFraction))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []Summary{{Timing: "annealing_time=1us", NumReads: 10, Distinct: 2}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ground frac.")
	assert.Contains(t, lines[1], "annealing_time=1us")
}

func TestString(t *testing.T) {
	assert.Equal(t, "10-qubit chain, h=0, J=-1, anneal_schedule=[(0, 0), (20, 1)], 100 reads", Default().String())
}
