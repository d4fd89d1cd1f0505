package sapi

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/ising"
	"github.com/copyleftdev/fmchain/internal/sampler"
	"github.com/copyleftdev/fmchain/internal/schedule"
)

var _ sampler.Sampler = (*Sampler)(nil)

func TestSampleIsingChain(t *testing.T) {
	solver := pathSolver("Advantage_system4.1", 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30)
	f, srv := newFakeAPI(t, solver)
	f.pollsBeforeDone = 2

	s, err := testClient(t, srv).Sampler(context.Background(), QPUOnly())
	require.NoError(t, err)
	assert.Equal(t, "Advantage_system4.1", s.Name())

	m := chainModel(t, 10)
	ss, err := s.SampleIsing(context.Background(), m, sampler.WithSchedule(100, schedule.Default(20)))
	require.NoError(t, err)

	assert.Equal(t, 100, ss.NumReads())
	assert.Equal(t, 2, ss.Len())
	for _, r := range ss.Records {
		assert.Equal(t, -9.0, r.Energy)
		e, err := m.Energy(r.Sample)
		require.NoError(t, err)
		assert.Equal(t, r.Energy, e)
	}
	assert.Equal(t, 1.0, ss.FractionAt(-9))
	assert.Equal(t, "Advantage_system4.1", ss.Info["solver"])
	assert.Equal(t, "problem-1", ss.Info["problem_id"])
	assert.Len(t, ss.Info["placement"], 10)

	subs := f.submissions()
	require.Len(t, subs, 1)
	params := subs[0].Params
	assert.EqualValues(t, 100, params["num_reads"])
	assert.Contains(t, params, "anneal_schedule")
	assert.NotContains(t, params, "annealing_time")
}

func TestSampleIsingAnnealingTime(t *testing.T) {
	solver := pathSolver("Advantage_system4.1", 0, 1, 2, 3)
	f, srv := newFakeAPI(t, solver)
	s := NewSampler(testClient(t, srv), &solver)

	_, err := s.SampleIsing(context.Background(), chainModel(t, 4), sampler.WithAnnealingTime(1, 50))
	require.NoError(t, err)

	params := f.submissions()[0].Params
	assert.EqualValues(t, 50, params["annealing_time"])
	assert.NotContains(t, params, "anneal_schedule")
}

func TestSampleIsingMapsQubitsBack(t *testing.T) {
	// Biased chain: the all-up state differs from all-down, so a wrong
	// column mapping shows up as an energy mismatch.
	solver := pathSolver("qpu", 9, 3, 7, 1)
	_, srv := newFakeAPI(t, solver)
	s := NewSampler(testClient(t, srv), &solver)

	m, err := ising.NewChain(4, []float64{0.5, -0.25, 0, 1}, -1)
	require.NoError(t, err)
	ss, err := s.SampleIsing(context.Background(), m, sampler.Params{NumReads: 2})
	require.NoError(t, err)

	for _, r := range ss.Records {
		e, err := m.Energy(r.Sample)
		require.NoError(t, err)
		assert.InDelta(t, e, r.Energy, 1e-12)
	}
}

func TestSampleIsingRejectsInvalidInput(t *testing.T) {
	solver := pathSolver("qpu", 0, 1, 2, 3)
	f, srv := newFakeAPI(t, solver)
	s := NewSampler(testClient(t, srv), &solver)
	m := chainModel(t, 4)
	at := 20.0

	tests := []struct {
		name   string
		model  *ising.Model
		params sampler.Params
		want   error
	}{
		{"both timings", m, sampler.Params{NumReads: 1, AnnealingTime: &at, AnnealSchedule: schedule.Default(20)}, sampler.ErrConflictingTiming},
		{"zero reads", m, sampler.Params{}, sampler.ErrInvalidReads},
		{"too large", chainModel(t, 6), sampler.Params{NumReads: 1}, ErrNoPlacement},
		{"empty model", ising.NewModel(0), sampler.Params{NumReads: 1}, ising.ErrEmptyModel},
		{"nan annealing time", m, sampler.WithAnnealingTime(1, math.NaN()), sampler.ErrInvalidAnnealingTime},
		{"nan schedule point", m, sampler.WithSchedule(1, schedule.Schedule{{Time: 0, S: 0}, {Time: 10, S: math.NaN()}, {Time: 20, S: 1}}), schedule.ErrNotFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SampleIsing(context.Background(), tt.model, tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
		})
	}
	assert.Empty(t, f.submissions())
}

func TestCheckParams(t *testing.T) {
	solver := pathSolver("qpu", 0, 1, 2)
	s := &Sampler{solver: &solver}
	m := chainModel(t, 3)

	ok := []sampler.Params{
		{NumReads: 1},
		sampler.WithAnnealingTime(100, 0.5),
		sampler.WithSchedule(100, schedule.WithPause(10, 0.4, 50, 70)),
		sampler.WithSchedule(100, schedule.Schedule{{Time: 0, S: 0}, {Time: 0.5, S: 1}}),
	}
	for _, p := range ok {
		assert.NoError(t, s.CheckParams(m, p), p.Timing())
	}

	bad := map[string]sampler.Params{
		"reads above range":   {NumReads: 10001},
		"time below range":    sampler.WithAnnealingTime(1, 0.1),
		"time above range":    sampler.WithAnnealingTime(1, 2001),
		"schedule not ending": sampler.WithSchedule(1, schedule.Schedule{{Time: 0, S: 0}, {Time: 10, S: 0.5}}),
		"schedule too long":   sampler.WithSchedule(1, schedule.Default(2500)),
		"schedule too steep":  sampler.WithSchedule(1, schedule.Schedule{{Time: 0, S: 0}, {Time: 0.25, S: 1}}),
		"too many points":     sampler.WithSchedule(1, manyPoints(13)),
	}
	for name, p := range bad {
		err := s.CheckParams(m, p)
		assert.Error(t, err, name)
		assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err), name)
	}

	strong, err := ising.NewChain(3, []float64{0, 3, 0}, -1)
	require.NoError(t, err)
	assert.ErrorContains(t, s.CheckParams(strong, sampler.Params{NumReads: 1}), "h[1]")

	tooStrong, err := ising.NewChain(3, nil, -2)
	require.NoError(t, err)
	assert.ErrorContains(t, s.CheckParams(tooStrong, sampler.Params{NumReads: 1}), "outside solver range")

	solver.Properties.Parameters = map[string]string{"num_reads": ""}
	assert.ErrorContains(t, s.CheckParams(m, sampler.WithAnnealingTime(1, 20)), "does not accept annealing_time")
	assert.ErrorContains(t, s.CheckParams(m, sampler.WithSchedule(1, schedule.Default(20))), "does not accept anneal_schedule")
}

func manyPoints(n int) schedule.Schedule {
	sc := make(schedule.Schedule, n)
	for i := range sc {
		sc[i] = schedule.Point{Time: float64(i), S: float64(i) / float64(n-1)}
	}
	return sc
}

func TestToLogicalErrors(t *testing.T) {
	ans := &decodedAnswer{Active: []int{4, 5}, Samples: [][]int8{{1, -1}}}

	_, err := toLogical(ans, Placement{4, 6})
	assert.ErrorContains(t, err, "unplaced qubit 5")

	_, err = toLogical(ans, Placement{4, 5, 6})
	assert.ErrorContains(t, err, "missing variable 2 (qubit 6)")

	_, err = toLogical(&decodedAnswer{Active: []int{4}}, Placement{4, 5})
	assert.ErrorContains(t, err, "missing variable 1")
}
