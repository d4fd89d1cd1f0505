// Package experiment describes a ferromagnetic chain run: the problem, the
// timing and read count, and the summaries reported for it.
package experiment

import (
	"context"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/ising"
	"github.com/copyleftdev/fmchain/internal/logging"
	"github.com/copyleftdev/fmchain/internal/sampler"
	"github.com/copyleftdev/fmchain/internal/schedule"
)

const component = "experiment"

// Experiment is one chain problem plus how to sample it. At most one of
// AnnealingTime and AnnealSchedule is set.
type Experiment struct {
	NumQubits       int               `yaml:"num_qubits" json:"num_qubits"`
	QubitBias       float64           `yaml:"qubit_bias" json:"qubit_bias"`
	CouplerStrength float64           `yaml:"coupler_strength" json:"coupler_strength"`
	AnnealingTime   *float64          `yaml:"annealing_time,omitempty" json:"annealing_time,omitempty"`
	AnnealSchedule  schedule.Schedule `yaml:"anneal_schedule,omitempty" json:"anneal_schedule,omitempty"`
	NumReads        int               `yaml:"num_reads" json:"num_reads"`
}

// Default is the reference run: ten unbiased qubits coupled at -1, a
// 20 µs linear schedule and 100 reads.
func Default() *Experiment {
	return &Experiment{
		NumQubits:       10,
		QubitBias:       0,
		CouplerStrength: -1,
		AnnealSchedule:  schedule.Default(schedule.DefaultAnnealingTime),
		NumReads:        100,
	}
}

// file mirrors Experiment with every field optional so a YAML document only
// overrides what it names.
type file struct {
	NumQubits       *int               `yaml:"num_qubits"`
	QubitBias       *float64           `yaml:"qubit_bias"`
	CouplerStrength *float64           `yaml:"coupler_strength"`
	AnnealingTime   *float64           `yaml:"annealing_time"`
	AnnealSchedule  *schedule.Schedule `yaml:"anneal_schedule"`
	NumReads        *int               `yaml:"num_reads"`
}

// Load reads an experiment from a YAML file. Fields the file omits keep
// their Default values; a file that sets annealing_time drops the default
// schedule.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, "read experiment").
			WithComponent(component).WithOperation("Load").WithKind(apperrors.KindInvalid)
	}
	e, err := Parse(data)
	if err != nil {
		return nil, apperrors.Wrapf(err, "parse %s", path).
			WithComponent(component).WithOperation("Load")
	}
	return e, nil
}

// Parse decodes a YAML experiment. See Load.
func Parse(data []byte) (*Experiment, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Invalid(component, "Parse", err)
	}

	e := Default()
	if f.NumQubits != nil {
		e.NumQubits = *f.NumQubits
	}
	if f.QubitBias != nil {
		e.QubitBias = *f.QubitBias
	}
	if f.CouplerStrength != nil {
		e.CouplerStrength = *f.CouplerStrength
	}
	if f.NumReads != nil {
		e.NumReads = *f.NumReads
	}
	if f.AnnealingTime != nil {
		e.AnnealingTime = f.AnnealingTime
		e.AnnealSchedule = nil
	}
	if f.AnnealSchedule != nil {
		e.AnnealSchedule = *f.AnnealSchedule
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the experiment can be turned into a problem and a
// submission.
func (e *Experiment) Validate() error {
	if e.NumQubits < 2 {
		return apperrors.Errorf("num_qubits must be at least 2, got %d", e.NumQubits).
			WithComponent(component).WithOperation("Validate").WithKind(apperrors.KindInvalid)
	}
	if !finite(e.QubitBias) || !finite(e.CouplerStrength) {
		return apperrors.New("qubit_bias and coupler_strength must be numbers").
			WithComponent(component).WithOperation("Validate").WithKind(apperrors.KindInvalid)
	}
	if err := e.Params().Validate(); err != nil {
		return apperrors.Invalid(component, "Validate", err)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Model builds the chain: every h is QubitBias and every neighbour pair is
// coupled at CouplerStrength.
func (e *Experiment) Model() (*ising.Model, error) {
	biases := make([]float64, e.NumQubits)
	for i := range biases {
		biases[i] = e.QubitBias
	}
	m, err := ising.NewChain(e.NumQubits, biases, e.CouplerStrength)
	if err != nil {
		return nil, apperrors.Invalid(component, "Model", err)
	}
	return m, nil
}

// Params returns the submission parameters. It carries whichever timing the
// experiment set and never both.
func (e *Experiment) Params() sampler.Params {
	p := sampler.Params{NumReads: e.NumReads}
	switch {
	case e.AnnealingTime != nil && e.AnnealSchedule != nil:
		// Keep both so Validate reports the conflict.
		t := *e.AnnealingTime
		p.AnnealingTime = &t
		p.AnnealSchedule = append(schedule.Schedule(nil), e.AnnealSchedule...)
	case e.AnnealingTime != nil:
		t := *e.AnnealingTime
		p.AnnealingTime = &t
	case e.AnnealSchedule != nil:
		p.AnnealSchedule = append(schedule.Schedule(nil), e.AnnealSchedule...)
	}
	return p
}

// WithAnnealingTime returns a copy of e timed by a scalar annealing time.
func (e *Experiment) WithAnnealingTime(us float64) *Experiment {
	c := *e
	c.AnnealingTime = &us
	c.AnnealSchedule = nil
	return &c
}

// WithAnnealSchedule returns a copy of e timed by sc.
func (e *Experiment) WithAnnealSchedule(sc schedule.Schedule) *Experiment {
	c := *e
	c.AnnealingTime = nil
	c.AnnealSchedule = sc
	return &c
}

func (e *Experiment) String() string {
	return fmt.Sprintf("%d-qubit chain, h=%g, J=%g, %s, %d reads",
		e.NumQubits, e.QubitBias, e.CouplerStrength, e.Params().Timing(), e.NumReads)
}

// Result is the outcome of one run.
type Result struct {
	Experiment *Experiment        `json:"experiment"`
	Solver     string             `json:"solver"`
	SampleSet  *sampler.SampleSet `json:"sampleset"`
	Summary    Summary            `json:"summary"`
}

// Run builds the problem, submits it to s and summarises the answer.
func (e *Experiment) Run(ctx context.Context, s sampler.Sampler) (*Result, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	m, err := e.Model()
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	log.Info("Submitting problem", map[string]interface{}{
		"solver":    s.Name(),
		"qubits":    e.NumQubits,
		"timing":    e.Params().Timing(),
		"num_reads": e.NumReads,
	})

	ss, err := s.SampleIsing(ctx, m, e.Params())
	if err != nil {
		return nil, apperrors.Wrapf(err, "sample %s", e).
			WithComponent(component).WithOperation("Run")
	}

	sum, err := Summarize(m, ss, e.Params().Timing())
	if err != nil {
		return nil, apperrors.Wrap(err, "summarize").WithComponent(component).WithOperation("Run")
	}
	log.Info("Problem sampled", map[string]interface{}{
		"solver":          s.Name(),
		"distinct":        ss.Len(),
		"ground_fraction": sum.GroundFraction,
		"mean_energy":     sum.MeanEnergy,
	})
	return &Result{Experiment: e, Solver: s.Name(), SampleSet: ss, Summary: sum}, nil
}

// Sweep runs e once per annealing time and returns the summaries in order.
// It stops at the first failure.
func (e *Experiment) Sweep(ctx context.Context, s sampler.Sampler, annealingTimes []float64) ([]Summary, error) {
	if len(annealingTimes) == 0 {
		return nil, apperrors.New("sweep needs at least one annealing time").
			WithComponent(component).WithOperation("Sweep").WithKind(apperrors.KindInvalid)
	}
	out := make([]Summary, 0, len(annealingTimes))
	for _, t := range annealingTimes {
		res, err := e.WithAnnealingTime(t).Run(ctx, s)
		if err != nil {
			return out, err
		}
		out = append(out, res.Summary)
	}
	return out, nil
}
