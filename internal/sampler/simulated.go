package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/copyleftdev/fmchain/internal/ising"
)

// SimulatedName is the solver name reported by SimulatedAnnealer.
const SimulatedName = "simulated-annealer"

// SimulatedAnnealer is an offline Metropolis sampler. Its inverse
// temperature follows the anneal schedule, so the shape of the schedule
// (pauses, quenches, duration) changes the distribution it returns.
type SimulatedAnnealer struct {
	sweepsPerMicro float64
	maxSweeps      int
	betaInitial    float64
	betaFinal      float64

	mu  sync.Mutex
	rng *rand.Rand
}

// SimulatedOption configures a SimulatedAnnealer.
type SimulatedOption func(*SimulatedAnnealer)

// WithSeed fixes the random source. A zero seed uses the clock.
func WithSeed(seed int64) SimulatedOption {
	return func(sa *SimulatedAnnealer) {
		if seed != 0 {
			sa.rng = rand.New(rand.NewSource(seed))
		}
	}
}

// WithSweeps sets how many Metropolis sweeps one microsecond of anneal
// time buys, and the cap per read.
func WithSweeps(perMicro float64, max int) SimulatedOption {
	return func(sa *SimulatedAnnealer) {
		if perMicro > 0 {
			sa.sweepsPerMicro = perMicro
		}
		if max > 0 {
			sa.maxSweeps = max
		}
	}
}

// WithBetaRange sets the inverse temperature at s=0 and s=1, in units of the
// model's largest coefficient.
func WithBetaRange(initial, final float64) SimulatedOption {
	return func(sa *SimulatedAnnealer) {
		if initial >= 0 && final > initial {
			sa.betaInitial = initial
			sa.betaFinal = final
		}
	}
}

// NewSimulatedAnnealer returns a sampler with 10 sweeps per µs, at most
// 20000 sweeps per read, and β rising from 0.1 to 5.
func NewSimulatedAnnealer(opts ...SimulatedOption) *SimulatedAnnealer {
	sa := &SimulatedAnnealer{
		sweepsPerMicro: 10,
		maxSweeps:      20000,
		betaInitial:    0.1,
		betaFinal:      5,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(sa)
	}
	return sa
}

// Name implements Sampler.
func (sa *SimulatedAnnealer) Name() string {
	return SimulatedName
}

// SampleIsing implements Sampler.
func (sa *SimulatedAnnealer) SampleIsing(ctx context.Context, m *ising.Model, p Params) (*SampleSet, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sched := p.Schedule()
	total := sched.Duration()
	sweeps := int(math.Ceil(total * sa.sweepsPerMicro))
	sweeps = min(max(sweeps, 1), sa.maxSweeps)

	scale := m.MaxAbsCoefficient()
	if scale == 0 {
		scale = 1
	}
	betas := make([]float64, sweeps)
	for k := range betas {
		t := (float64(k) + 0.5) / float64(sweeps) * total
		s := sched.At(t)
		betas[k] = (sa.betaInitial + (sa.betaFinal-sa.betaInitial)*s) / scale
	}

	n := m.NumVariables()
	adj := m.Adjacency()
	samples := make([][]int8, p.NumReads)

	sa.mu.Lock()
	defer sa.mu.Unlock()

	start := time.Now()
	for read := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spins := make([]int8, n)
		for i := range spins {
			if sa.rng.Intn(2) == 0 {
				spins[i] = ising.Down
			} else {
				spins[i] = ising.Up
			}
		}
		for _, beta := range betas {
			sa.sweep(m.Linear, adj, spins, beta)
		}
		samples[read] = spins
	}
	elapsed := time.Since(start)

	energies, err := m.Energies(samples)
	if err != nil {
		return nil, err
	}

	variables := make([]int, n)
	for i := range variables {
		variables[i] = i
	}
	return NewSampleSet(variables, samples, energies, nil, map[string]interface{}{
		"solver": SimulatedName,
		"timing": p.Timing(),
		"sweeps": sweeps,
		"beta_range": []float64{
			betas[0], betas[len(betas)-1],
		},
		"sampling_time_us": float64(elapsed.Microseconds()),
	})
}

// sweep proposes one flip per spin in index order.
func (sa *SimulatedAnnealer) sweep(h []float64, adj [][]ising.Neighbor, spins []int8, beta float64) {
	for i := range spins {
		field := h[i]
		for _, nb := range adj[i] {
			field += nb.J * float64(spins[nb.Index])
		}
		delta := -2 * float64(spins[i]) * field
		if delta <= 0 || sa.rng.Float64() < math.Exp(-beta*delta) {
			spins[i] = -spins[i]
		}
	}
}

func (sa *SimulatedAnnealer) String() string {
	return fmt.Sprintf("%s(%g sweeps/us, beta %g..%g)", SimulatedName, sa.sweepsPerMicro, sa.betaInitial, sa.betaFinal)
}
