// Package ising holds the Ising problem model: a bias per spin (h) and a
// coupling strength per unordered pair of spins (J).
package ising

import (
	"fmt"
	"sort"
)

// Spin values.
const (
	Up   int8 = 1
	Down int8 = -1
)

// Edge is an unordered pair of variable indices, stored with U < V.
type Edge struct {
	U, V int
}

// NewEdge returns the canonical Edge for the pair {a, b}.
func NewEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{U: a, V: b}
}

func (e Edge) String() string {
	return fmt.Sprintf("(%d, %d)", e.U, e.V)
}

// Model is an Ising problem over variables 0..len(Linear)-1.
type Model struct {
	// Linear is the bias vector h, one entry per variable.
	Linear []float64
	// Quadratic is the coupling mapping J.
	Quadratic map[Edge]float64
}

// NewModel returns an empty model over n variables with zero biases.
func NewModel(n int) *Model {
	return &Model{
		Linear:    make([]float64, n),
		Quadratic: make(map[Edge]float64),
	}
}

// NewChain builds a linear chain of n spins. biases may be nil for all-zero
// biases; otherwise it must have exactly n entries. Every adjacent pair
// (i, i+1) is coupled with strength.
func NewChain(n int, biases []float64, strength float64) (*Model, error) {
	if n < 2 {
		return nil, NewErrorf("a chain needs at least 2 qubits, got %d", n).WithOperation("NewChain")
	}
	if biases != nil && len(biases) != n {
		return nil, NewErrorf("got %d biases for %d qubits", len(biases), n).WithOperation("NewChain")
	}

	m := NewModel(n)
	copy(m.Linear, biases)
	for i := 0; i < n-1; i++ {
		m.Quadratic[Edge{U: i, V: i + 1}] = strength
	}
	return m, nil
}

// NewFerromagneticChain returns n spins with zero bias and every neighbour
// pair coupled at -1.
func NewFerromagneticChain(n int) (*Model, error) {
	return NewChain(n, nil, -1)
}

// NumVariables returns the number of spins in the model.
func (m *Model) NumVariables() int {
	return len(m.Linear)
}

// SetCoupling sets J for the pair {a, b}, replacing any previous value.
func (m *Model) SetCoupling(a, b int, value float64) {
	m.Quadratic[NewEdge(a, b)] = value
}

// Coupling returns J for the pair {a, b} and whether the pair is coupled.
func (m *Model) Coupling(a, b int) (float64, bool) {
	v, ok := m.Quadratic[NewEdge(a, b)]
	return v, ok
}

// Edges returns the coupled pairs sorted by U then V.
func (m *Model) Edges() []Edge {
	edges := make([]Edge, 0, len(m.Quadratic))
	for e := range m.Quadratic {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})
	return edges
}

// Adjacency returns, for each variable, its coupled neighbours and the
// coupling strength to each.
func (m *Model) Adjacency() [][]Neighbor {
	adj := make([][]Neighbor, m.NumVariables())
	for _, e := range m.Edges() {
		j := m.Quadratic[e]
		adj[e.U] = append(adj[e.U], Neighbor{Index: e.V, J: j})
		adj[e.V] = append(adj[e.V], Neighbor{Index: e.U, J: j})
	}
	return adj
}

// Neighbor is one entry of an adjacency list.
type Neighbor struct {
	Index int
	J     float64
}

// IsChain reports whether the coupling graph is exactly the path
// 0-1-...-(n-1).
func (m *Model) IsChain() bool {
	n := m.NumVariables()
	if n < 2 || len(m.Quadratic) != n-1 {
		return false
	}
	for i := 0; i < n-1; i++ {
		if _, ok := m.Quadratic[Edge{U: i, V: i + 1}]; !ok {
			return false
		}
	}
	return true
}

// MaxAbsCoefficient returns the largest |h| or |J| in the model.
func (m *Model) MaxAbsCoefficient() float64 {
	var max float64
	for _, h := range m.Linear {
		if a := abs(h); a > max {
			max = a
		}
	}
	for _, j := range m.Quadratic {
		if a := abs(j); a > max {
			max = a
		}
	}
	return max
}

// Validate checks that every coupling refers to two distinct variables of
// the model.
func (m *Model) Validate() error {
	n := m.NumVariables()
	if n == 0 {
		return ErrEmptyModel
	}
	for e := range m.Quadratic {
		if e.U == e.V {
			return NewErrorf("self coupling on variable %d", e.U).WithOperation("Validate")
		}
		if e.U > e.V {
			return NewErrorf("edge %v is not canonical", e).WithOperation("Validate")
		}
		if e.U < 0 || e.V >= n {
			return NewErrorf("edge %v out of range for %d variables", e, n).WithOperation("Validate")
		}
	}
	return nil
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	c := &Model{
		Linear:    append([]float64(nil), m.Linear...),
		Quadratic: make(map[Edge]float64, len(m.Quadratic)),
	}
	for e, v := range m.Quadratic {
		c.Quadratic[e] = v
	}
	return c
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
