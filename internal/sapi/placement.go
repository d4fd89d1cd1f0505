package sapi

import (
	"sort"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/ising"
)

// ErrNoPlacement is returned when a model cannot be put on the solver's
// qubits one variable per qubit.
var ErrNoPlacement = apperrors.New("problem graph cannot be placed on the solver's working graph without minor-embedding").
	WithComponent(component).WithKind(apperrors.KindInvalid)

// maxPathSteps bounds the backtracking search for a qubit path.
const maxPathSteps = 1 << 20

// Placement maps logical variable i to physical qubit Placement[i].
type Placement []int

// hardwareGraph is the working qubit graph of a solver.
type hardwareGraph struct {
	qubits []int
	adj    map[int][]int
	edges  map[ising.Edge]struct{}
}

func newHardwareGraph(props *Properties) *hardwareGraph {
	g := &hardwareGraph{
		qubits: append([]int(nil), props.Qubits...),
		adj:    make(map[int][]int, len(props.Qubits)),
		edges:  make(map[ising.Edge]struct{}, len(props.Couplers)),
	}
	sort.Ints(g.qubits)
	working := make(map[int]struct{}, len(g.qubits))
	for _, q := range g.qubits {
		working[q] = struct{}{}
	}
	for _, c := range props.Couplers {
		_, ok1 := working[c[0]]
		_, ok2 := working[c[1]]
		if !ok1 || !ok2 || c[0] == c[1] {
			continue
		}
		g.edges[ising.NewEdge(c[0], c[1])] = struct{}{}
		g.adj[c[0]] = append(g.adj[c[0]], c[1])
		g.adj[c[1]] = append(g.adj[c[1]], c[0])
	}
	for q := range g.adj {
		sort.Ints(g.adj[q])
	}
	return g
}

// Place finds a one-to-one placement of m's variables onto working qubits.
// A model whose variables and couplings already exist on the hardware is
// placed on the identity. A chain is laid along any simple path of working
// couplers. Anything else needs minor-embedding and is rejected.
func Place(m *ising.Model, props *Properties) (Placement, error) {
	g := newHardwareGraph(props)
	n := m.NumVariables()

	if g.native(m) {
		p := make(Placement, n)
		for i := range p {
			p[i] = i
		}
		return p, nil
	}
	if m.IsChain() {
		if path := g.path(n); path != nil {
			return path, nil
		}
	}
	return nil, ErrNoPlacement
}

// native reports whether every variable index is a working qubit and every
// coupling a working coupler.
func (g *hardwareGraph) native(m *ising.Model) bool {
	for i := 0; i < m.NumVariables(); i++ {
		if idx := sort.SearchInts(g.qubits, i); idx == len(g.qubits) || g.qubits[idx] != i {
			return false
		}
	}
	for e := range m.Quadratic {
		if _, ok := g.edges[e]; !ok {
			return false
		}
	}
	return true
}

// path returns a simple path of n qubits, or nil when the bounded search
// finds none.
func (g *hardwareGraph) path(n int) []int {
	if n == 1 && len(g.qubits) > 0 {
		return []int{g.qubits[0]}
	}
	steps := 0
	onPath := make(map[int]bool, n)
	path := make([]int, 0, n)

	var extend func(q int) bool
	extend = func(q int) bool {
		steps++
		if steps > maxPathSteps {
			return false
		}
		path = append(path, q)
		onPath[q] = true
		if len(path) == n {
			return true
		}
		for _, next := range g.adj[q] {
			if !onPath[next] && extend(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		onPath[q] = false
		return false
	}

	for _, start := range g.qubits {
		if len(g.adj[start]) == 0 {
			continue
		}
		if extend(start) {
			return append([]int(nil), path...)
		}
		if steps > maxPathSteps {
			break
		}
	}
	return nil
}

// apply restates m on physical qubits.
func (p Placement) apply(m *ising.Model) (map[int]float64, map[ising.Edge]float64) {
	linear := make(map[int]float64, len(p))
	for v, q := range p {
		linear[q] = m.Linear[v]
	}
	quadratic := make(map[ising.Edge]float64, len(m.Quadratic))
	for e, j := range m.Quadratic {
		quadratic[ising.NewEdge(p[e.U], p[e.V])] = j
	}
	return linear, quadratic
}

// inverse maps physical qubits back to logical variables.
func (p Placement) inverse() map[int]int {
	inv := make(map[int]int, len(p))
	for v, q := range p {
		inv[q] = v
	}
	return inv
}
