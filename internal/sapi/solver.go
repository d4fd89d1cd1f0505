package sapi

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
)

// ErrNoSolver is returned when no online solver matches a Filter.
var ErrNoSolver = apperrors.New("no solver matches the filter").WithComponent(component).WithKind(apperrors.KindUnavailable)

// Topology describes the qubit graph family of a QPU.
type Topology struct {
	Type  string `json:"type"`
	Shape []int  `json:"shape"`
}

// Properties are the solver properties this client relies on. Ranges left
// at zero are treated as unconstrained.
type Properties struct {
	NumQubits               int               `json:"num_qubits"`
	Qubits                  []int             `json:"qubits"`
	Couplers                [][2]int          `json:"couplers"`
	HRange                  [2]float64        `json:"h_range"`
	JRange                  [2]float64        `json:"j_range"`
	AnnealingTimeRange      [2]float64        `json:"annealing_time_range"`
	DefaultAnnealingTime    float64           `json:"default_annealing_time"`
	MaxAnnealSchedulePoints int               `json:"max_anneal_schedule_points"`
	NumReadsRange           [2]int            `json:"num_reads_range"`
	Category                string            `json:"category"`
	SupportedProblemTypes   []string          `json:"supported_problem_types"`
	Parameters              map[string]string `json:"parameters"`
	Topology                Topology          `json:"topology"`
}

// SolverDescription is one entry of the solver listing.
type SolverDescription struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	AvgLoad     *float64   `json:"avg_load,omitempty"`
	Properties  Properties `json:"properties"`
}

// Online reports whether the solver accepts problems.
func (d *SolverDescription) Online() bool {
	return d.Status == "" || strings.EqualFold(d.Status, "online")
}

// IsQPU reports whether the solver is a quantum processor rather than a
// software or hybrid solver.
func (d *SolverDescription) IsQPU() bool {
	if d.Properties.Category != "" {
		return d.Properties.Category == "qpu"
	}
	return len(d.Properties.Qubits) > 0 && !strings.HasPrefix(d.ID, "hybrid")
}

// Supports reports whether the solver accepts a parameter. Solvers that do
// not publish a parameter list are assumed to accept everything.
func (d *SolverDescription) Supports(param string) bool {
	if len(d.Properties.Parameters) == 0 {
		return true
	}
	_, ok := d.Properties.Parameters[param]
	return ok
}

// load orders solvers by average load; unknown load sorts last.
func (d *SolverDescription) load() float64 {
	if d.AvgLoad == nil {
		return math.Inf(1)
	}
	return *d.AvgLoad
}

// Filter selects a solver. Zero fields match anything.
type Filter struct {
	// QPU restricts to quantum (true) or non-quantum (false) solvers.
	QPU *bool
	// Name requires an exact solver id.
	Name string
	// ProblemType requires support for a problem type such as "ising".
	ProblemType string
}

// QPUOnly is the filter for any online quantum processor.
func QPUOnly() Filter {
	qpu := true
	return Filter{QPU: &qpu, ProblemType: "ising"}
}

// Match reports whether d satisfies the filter and is online.
func (f Filter) Match(d *SolverDescription) bool {
	if !d.Online() {
		return false
	}
	if f.Name != "" && d.ID != f.Name {
		return false
	}
	if f.QPU != nil && d.IsQPU() != *f.QPU {
		return false
	}
	if f.ProblemType != "" && len(d.Properties.SupportedProblemTypes) > 0 {
		found := false
		for _, t := range d.Properties.SupportedProblemTypes {
			if t == f.ProblemType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Solvers lists every solver visible to the token.
func (c *Client) Solvers(ctx context.Context) ([]SolverDescription, error) {
	var out []SolverDescription
	if err := c.do(ctx, "GET", "solvers/remote/", nil, &out); err != nil {
		return nil, classify(err, "Solvers", "list solvers")
	}
	return out, nil
}

// Solver returns the least loaded online solver matching f. A named solver
// is fetched directly.
func (c *Client) Solver(ctx context.Context, f Filter) (*SolverDescription, error) {
	if f.Name != "" {
		var d SolverDescription
		if err := c.do(ctx, "GET", "solvers/remote/"+url.PathEscape(f.Name)+"/", nil, &d); err != nil {
			return nil, classify(err, "Solver", "fetch solver "+f.Name)
		}
		if !f.Match(&d) {
			return nil, apperrors.Wrapf(ErrNoSolver, "solver %s is offline or does not match the filter", f.Name).
				WithComponent(component).WithOperation("Solver")
		}
		return &d, nil
	}

	all, err := c.Solvers(ctx)
	if err != nil {
		return nil, err
	}
	var matches []SolverDescription
	for i := range all {
		if f.Match(&all[i]) {
			matches = append(matches, all[i])
		}
	}
	if len(matches) == 0 {
		return nil, ErrNoSolver
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if li, lj := matches[i].load(), matches[j].load(); li != lj {
			return li < lj
		}
		return matches[i].Properties.NumQubits > matches[j].Properties.NumQubits
	})

	chosen := matches[0]
	c.logger.Info("selected solver",
		zap.String("solver", chosen.ID),
		zap.Int("candidates", len(matches)),
		zap.Float64("avg_load", chosen.load()),
	)
	return &chosen, nil
}
