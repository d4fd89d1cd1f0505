package sapi

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/copyleftdev/fmchain/internal/ising"
)

// qpFormat is the binary problem and answer encoding of the solver API.
const qpFormat = "qp"

// ProblemData is the "data" member of a problem submission.
type ProblemData struct {
	Format string `json:"format"`
	Lin    string `json:"lin"`
	Quad   string `json:"quad"`
}

// encodeProblem encodes a problem stated on physical qubits. lin holds one
// little-endian float64 per working qubit in ascending order, NaN for qubits
// the problem does not use. quad holds one float64 per working coupler,
// in the solver's coupler order, restricted to couplers between used qubits.
func encodeProblem(props *Properties, linear map[int]float64, quadratic map[ising.Edge]float64) (ProblemData, error) {
	working := make(map[int]struct{}, len(props.Qubits))
	for _, q := range props.Qubits {
		working[q] = struct{}{}
	}
	couplers := make(map[ising.Edge]struct{}, len(props.Couplers))
	for _, c := range props.Couplers {
		couplers[ising.NewEdge(c[0], c[1])] = struct{}{}
	}

	active := make(map[int]struct{}, len(linear))
	for q := range linear {
		if _, ok := working[q]; !ok {
			return ProblemData{}, fmt.Errorf("qubit %d is not a working qubit", q)
		}
		active[q] = struct{}{}
	}
	for e := range quadratic {
		if _, ok := couplers[e]; !ok {
			return ProblemData{}, fmt.Errorf("coupler %v is not a working coupler", e)
		}
		active[e.U] = struct{}{}
		active[e.V] = struct{}{}
	}

	qubits := append([]int(nil), props.Qubits...)
	sort.Ints(qubits)
	lin := make([]float64, len(qubits))
	for i, q := range qubits {
		if _, ok := active[q]; !ok {
			lin[i] = math.NaN()
			continue
		}
		lin[i] = linear[q]
	}

	var quad []float64
	for _, c := range props.Couplers {
		_, ok1 := active[c[0]]
		_, ok2 := active[c[1]]
		if !ok1 || !ok2 {
			continue
		}
		quad = append(quad, quadratic[ising.NewEdge(c[0], c[1])])
	}

	return ProblemData{
		Format: qpFormat,
		Lin:    encodeFloat64s(lin),
		Quad:   encodeFloat64s(quad),
	}, nil
}

// Answer is the "answer" member of a completed problem.
type Answer struct {
	Format          string             `json:"format"`
	NumVariables    int                `json:"num_variables"`
	ActiveVariables string             `json:"active_variables"`
	Solutions       string             `json:"solutions"`
	Energies        string             `json:"energies"`
	NumOccurrences  string             `json:"num_occurrences,omitempty"`
	Timing          map[string]float64 `json:"timing,omitempty"`
}

// decodedAnswer holds an Answer in native form. Samples are ordered like
// Active.
type decodedAnswer struct {
	Active      []int
	Samples     [][]int8
	Energies    []float64
	Occurrences []int
	Timing      map[string]float64
}

// decodeAnswer unpacks a qp answer. Solutions are bit-packed, most
// significant bit first, each solution padded to a whole byte; a set bit
// is spin +1.
func decodeAnswer(a *Answer) (*decodedAnswer, error) {
	if a.Format != qpFormat {
		return nil, fmt.Errorf("unsupported answer format %q", a.Format)
	}

	active32, err := decodeInt32s(a.ActiveVariables)
	if err != nil {
		return nil, fmt.Errorf("active_variables: %w", err)
	}
	energies, err := decodeFloat64s(a.Energies)
	if err != nil {
		return nil, fmt.Errorf("energies: %w", err)
	}
	packed, err := base64.StdEncoding.DecodeString(a.Solutions)
	if err != nil {
		return nil, fmt.Errorf("solutions: %w", err)
	}

	active := make([]int, len(active32))
	for i, v := range active32 {
		active[i] = int(v)
	}

	rowBytes := (len(active) + 7) / 8
	if len(packed) != rowBytes*len(energies) {
		return nil, fmt.Errorf("solutions hold %d bytes, want %d for %d samples of %d variables",
			len(packed), rowBytes*len(energies), len(energies), len(active))
	}

	samples := make([][]int8, len(energies))
	for i := range samples {
		row := packed[i*rowBytes : (i+1)*rowBytes]
		s := make([]int8, len(active))
		for j := range s {
			if row[j/8]&(0x80>>(j%8)) != 0 {
				s[j] = ising.Up
			} else {
				s[j] = ising.Down
			}
		}
		samples[i] = s
	}

	var occurrences []int
	if a.NumOccurrences != "" {
		occ32, err := decodeInt32s(a.NumOccurrences)
		if err != nil {
			return nil, fmt.Errorf("num_occurrences: %w", err)
		}
		if len(occ32) != len(energies) {
			return nil, fmt.Errorf("got %d occurrence counts for %d samples", len(occ32), len(energies))
		}
		occurrences = make([]int, len(occ32))
		for i, v := range occ32 {
			occurrences[i] = int(v)
		}
	}

	return &decodedAnswer{
		Active:      active,
		Samples:     samples,
		Energies:    energies,
		Occurrences: occurrences,
		Timing:      a.Timing,
	}, nil
}

func encodeFloat64s(values []float64) string {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeFloat64s(s string) ([]float64, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of float64 values", len(buf))
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

func decodeInt32s(s string) ([]int32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of int32 values", len(buf))
	}
	out := make([]int32, len(buf)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
