package ising

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Energy returns Σ h_i s_i + Σ J_ij s_i s_j for a spin assignment.
func (m *Model) Energy(sample []int8) (float64, error) {
	if err := m.checkSample(sample); err != nil {
		return 0, err
	}
	s := spinsToFloat(sample)
	return m.energy(s, m.couplingMatrix()), nil
}

// Energies evaluates many samples against the same model, building the
// coupling matrix once.
func (m *Model) Energies(samples [][]int8) ([]float64, error) {
	cm := m.couplingMatrix()
	out := make([]float64, len(samples))
	for i, sample := range samples {
		if err := m.checkSample(sample); err != nil {
			return nil, err
		}
		out[i] = m.energy(spinsToFloat(sample), cm)
	}
	return out, nil
}

func (m *Model) energy(s []float64, cm *mat.Dense) float64 {
	e := floats.Dot(m.Linear, s)
	if cm != nil {
		v := mat.NewVecDense(len(s), s)
		e += mat.Inner(v, cm, v)
	}
	return e
}

// couplingMatrix returns J as a strictly upper triangular matrix, or nil
// when the model has no couplings.
func (m *Model) couplingMatrix() *mat.Dense {
	n := m.NumVariables()
	if n == 0 || len(m.Quadratic) == 0 {
		return nil
	}
	cm := mat.NewDense(n, n, nil)
	for e, j := range m.Quadratic {
		cm.Set(e.U, e.V, cm.At(e.U, e.V)+j)
	}
	return cm
}

// Unsatisfied counts couplings whose energy term is positive. On a chain
// these are the domain walls.
func (m *Model) Unsatisfied(sample []int8) (int, error) {
	if err := m.checkSample(sample); err != nil {
		return 0, err
	}
	var n int
	for e, j := range m.Quadratic {
		if j*float64(sample[e.U])*float64(sample[e.V]) > 0 {
			n++
		}
	}
	return n, nil
}

// ChainGroundEnergy returns the ground-state energy of a bias-free model
// whose coupling graph is a tree, where every coupling can be satisfied at
// once. ok is false for any other model.
func (m *Model) ChainGroundEnergy() (energy float64, ok bool) {
	for _, h := range m.Linear {
		if h != 0 {
			return 0, false
		}
	}
	if len(m.Quadratic) != m.NumVariables()-1 || !m.connected() {
		return 0, false
	}
	for _, j := range m.Quadratic {
		energy -= abs(j)
	}
	return energy, true
}

// connected reports whether every variable is reachable from variable 0.
func (m *Model) connected() bool {
	n := m.NumVariables()
	if n == 0 {
		return false
	}
	adj := m.Adjacency()
	seen := make([]bool, n)
	stack := []int{0}
	seen[0] = true
	count := 1
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nb := range adj[v] {
			if !seen[nb.Index] {
				seen[nb.Index] = true
				count++
				stack = append(stack, nb.Index)
			}
		}
	}
	return count == n
}

func (m *Model) checkSample(sample []int8) error {
	if len(sample) != m.NumVariables() {
		return NewErrorf("sample has %d spins, model has %d variables", len(sample), m.NumVariables()).WithOperation("Energy")
	}
	for i, s := range sample {
		if s != Up && s != Down {
			return NewErrorf("spin %d has value %d, want ±1", i, s).WithOperation("Energy")
		}
	}
	return nil
}

func spinsToFloat(sample []int8) []float64 {
	s := make([]float64, len(sample))
	for i, v := range sample {
		s[i] = float64(v)
	}
	return s
}
