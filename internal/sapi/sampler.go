package sapi

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/ising"
	"github.com/copyleftdev/fmchain/internal/sampler"
)

// slopeTolerance absorbs float error when comparing schedule slopes.
const slopeTolerance = 1e-9

// Sampler submits problems to one solver. It implements sampler.Sampler.
type Sampler struct {
	client *Client
	solver *SolverDescription
	logger *zap.Logger
}

// NewSampler binds a client to a solver.
func NewSampler(client *Client, solver *SolverDescription) *Sampler {
	return &Sampler{
		client: client,
		solver: solver,
		logger: client.logger.With(zap.String("solver", solver.ID)),
	}
}

// Sampler selects a solver with f and returns a sampler bound to it.
func (c *Client) Sampler(ctx context.Context, f Filter) (*Sampler, error) {
	d, err := c.Solver(ctx, f)
	if err != nil {
		return nil, err
	}
	return NewSampler(c, d), nil
}

// Name implements sampler.Sampler.
func (s *Sampler) Name() string {
	return s.solver.ID
}

// Solver returns the solver description the sampler is bound to.
func (s *Sampler) Solver() *SolverDescription {
	return s.solver
}

// CheckParams validates a submission against the solver's published
// limits before anything is sent.
func (s *Sampler) CheckParams(m *ising.Model, p sampler.Params) error {
	props := &s.solver.Properties
	invalid := func(format string, args ...interface{}) error {
		return apperrors.Errorf(format, args...).
			WithComponent(component).WithOperation("CheckParams").WithKind(apperrors.KindInvalid)
	}

	if r := props.NumReadsRange; r[1] > 0 && (p.NumReads < r[0] || p.NumReads > r[1]) {
		return invalid("num_reads %d outside solver range [%d, %d]", p.NumReads, r[0], r[1])
	}

	atr := props.AnnealingTimeRange
	if p.AnnealingTime != nil {
		if !s.solver.Supports("annealing_time") {
			return invalid("solver %s does not accept annealing_time", s.solver.ID)
		}
		if atr[1] > 0 && (*p.AnnealingTime < atr[0] || *p.AnnealingTime > atr[1]) {
			return invalid("annealing_time %gus outside solver range [%g, %g]", *p.AnnealingTime, atr[0], atr[1])
		}
	}

	if sc := p.AnnealSchedule; sc != nil {
		if !s.solver.Supports("anneal_schedule") {
			return invalid("solver %s does not accept anneal_schedule", s.solver.ID)
		}
		if max := props.MaxAnnealSchedulePoints; max > 0 && len(sc) > max {
			return invalid("anneal_schedule has %d points, solver allows %d", len(sc), max)
		}
		if sc.Final() != 1 {
			return invalid("a forward anneal_schedule must end at s=1, got s=%g", sc.Final())
		}
		if atr[1] > 0 && sc.Duration() > atr[1] {
			return invalid("anneal_schedule lasts %gus, solver allows %gus", sc.Duration(), atr[1])
		}
		if atr[0] > 0 && sc.MaxSlope() > 1/atr[0]+slopeTolerance {
			return invalid("anneal_schedule slope %g/us exceeds solver limit %g/us", sc.MaxSlope(), 1/atr[0])
		}
	}

	if r := props.HRange; r != [2]float64{} {
		for i, h := range m.Linear {
			if h < r[0] || h > r[1] {
				return invalid("h[%d]=%g outside solver range [%g, %g]", i, h, r[0], r[1])
			}
		}
	}
	if r := props.JRange; r != [2]float64{} {
		for e, j := range m.Quadratic {
			if j < r[0] || j > r[1] {
				return invalid("J%v=%g outside solver range [%g, %g]", e, j, r[0], r[1])
			}
		}
	}
	return nil
}

// requestParams renders the timing and read count the way the service
// expects them. Only one timing key is ever set.
func requestParams(p sampler.Params) map[string]interface{} {
	params := map[string]interface{}{
		"num_reads": p.NumReads,
	}
	switch {
	case p.AnnealSchedule != nil:
		params["anneal_schedule"] = p.AnnealSchedule.Pairs()
	case p.AnnealingTime != nil:
		params["annealing_time"] = *p.AnnealingTime
	}
	return params
}

// SampleIsing implements sampler.Sampler. It places m on the solver's
// qubits, submits it, waits for the answer, and returns samples indexed by
// the model's own variables.
func (s *Sampler) SampleIsing(ctx context.Context, m *ising.Model, p sampler.Params) (*sampler.SampleSet, error) {
	if err := m.Validate(); err != nil {
		return nil, apperrors.Invalid(component, "SampleIsing", err)
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Invalid(component, "SampleIsing", err)
	}
	if err := s.CheckParams(m, p); err != nil {
		return nil, err
	}

	placement, err := Place(m, &s.solver.Properties)
	if err != nil {
		return nil, err
	}
	linear, quadratic := placement.apply(m)
	data, err := encodeProblem(&s.solver.Properties, linear, quadratic)
	if err != nil {
		return nil, apperrors.Invalid(component, "SampleIsing", err)
	}

	st, err := s.client.Submit(ctx, ProblemRequest{
		Solver: s.solver.ID,
		Data:   data,
		Type:   "ising",
		Params: requestParams(p),
	})
	if err != nil {
		return nil, err
	}
	st, err = s.client.Await(ctx, st)
	if err != nil {
		return nil, err
	}

	ans, err := decodeAnswer(st.Answer)
	if err != nil {
		return nil, apperrors.Wrapf(err, "decode answer for problem %s", st.ID).
			WithComponent(component).WithOperation("SampleIsing").WithKind(apperrors.KindTransport)
	}
	samples, err := toLogical(ans, placement)
	if err != nil {
		return nil, apperrors.Wrapf(err, "map answer for problem %s", st.ID).
			WithComponent(component).WithOperation("SampleIsing").WithKind(apperrors.KindTransport)
	}

	variables := make([]int, m.NumVariables())
	for i := range variables {
		variables[i] = i
	}
	info := map[string]interface{}{
		"solver":     s.solver.ID,
		"problem_id": st.ID,
		"timing":     ans.Timing,
		"placement":  []int(placement),
		"params":     p.Timing(),
	}
	ss, err := sampler.NewSampleSet(variables, samples, ans.Energies, ans.Occurrences, info)
	if err != nil {
		return nil, err
	}

	s.logger.Info("problem completed",
		zap.String("problem_id", st.ID),
		zap.Int("num_reads", ss.NumReads()),
		zap.Int("distinct_samples", ss.Len()),
	)
	return ss, nil
}

// toLogical reorders answer samples from active-qubit order into the
// model's variable order.
func toLogical(ans *decodedAnswer, placement Placement) ([][]int8, error) {
	inv := placement.inverse()
	column := make([]int, len(placement))
	for i := range column {
		column[i] = -1
	}
	for col, q := range ans.Active {
		v, ok := inv[q]
		if !ok {
			return nil, fmt.Errorf("answer contains unplaced qubit %d", q)
		}
		column[v] = col
	}
	for v, col := range column {
		if col < 0 {
			return nil, fmt.Errorf("answer is missing variable %d (qubit %d)", v, placement[v])
		}
	}

	out := make([][]int8, len(ans.Samples))
	for i, physical := range ans.Samples {
		logical := make([]int8, len(placement))
		for v, col := range column {
			logical[v] = physical[col]
		}
		out[i] = logical
	}
	return out, nil
}
