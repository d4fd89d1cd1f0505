package sapi

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testToken = "test-token"

// fakeAPI is an in-memory solver API. Problems complete after
// pollsBeforeDone status requests and answer with the two uniform spin
// states, split evenly over num_reads.
type fakeAPI struct {
	t *testing.T

	mu              sync.Mutex
	solvers         []SolverDescription
	problems        map[string]*fakeProblem
	submitted       []ProblemRequest
	cancelled       []string
	pollsBeforeDone int
	pollErrors      []int
	failWith        string
	nextID          int
}

type fakeProblem struct {
	status ProblemStatus
	polls  int
	answer *Answer
}

func newFakeAPI(t *testing.T, solvers ...SolverDescription) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{
		t:        t,
		solvers:  solvers,
		problems: make(map[string]*fakeProblem),
	}

	r := chi.NewRouter()
	r.Use(f.auth)
	r.Get("/sapi/v2/solvers/remote/", f.listSolvers)
	r.Get("/sapi/v2/solvers/remote/{id}/", f.getSolver)
	r.Post("/sapi/v2/problems/", f.submit)
	r.Get("/sapi/v2/problems/{id}/", f.status)
	r.Delete("/sapi/v2/problems/{id}/", f.cancel)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error_code": 401, "error_msg": "Invalid token or access denied"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) listSolvers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.solvers)
}

func (f *fakeAPI) getSolver(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	for _, s := range f.solvers {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{"error_code": 404, "error_msg": "Solver does not exist or apitoken does not have access"})
}

func (f *fakeAPI) submit(w http.ResponseWriter, r *http.Request) {
	var reqs []ProblemRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error_msg": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ProblemStatus
	for _, req := range reqs {
		f.submitted = append(f.submitted, req)
		f.nextID++
		id := fmt.Sprintf("problem-%d", f.nextID)
		p := &fakeProblem{status: ProblemStatus{ID: id, Status: StatusPending, Solver: req.Solver, Type: req.Type}}
		if f.failWith != "" {
			p.status.Status = StatusFailed
			p.status.ErrorMessage = f.failWith
		} else {
			ans, err := f.answer(req)
			require.NoError(f.t, err)
			p.answer = ans
		}
		f.problems[id] = p
		out = append(out, p.status)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeAPI) status(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pollErrors) > 0 {
		code := f.pollErrors[0]
		f.pollErrors = f.pollErrors[1:]
		writeJSON(w, code, map[string]interface{}{"error_code": code, "error_msg": "try again"})
		return
	}
	p, ok := f.problems[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error_code": 404, "error_msg": "Problem does not exist"})
		return
	}
	p.polls++
	if p.status.Status == StatusPending && p.polls >= f.pollsBeforeDone {
		p.status.Status = StatusCompleted
		p.status.SolvedOn = time.Now().UTC().Format(time.RFC3339)
		p.status.Answer = p.answer
	}
	writeJSON(w, http.StatusOK, p.status)
}

func (f *fakeAPI) cancel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	f.cancelled = append(f.cancelled, id)
	if p, ok := f.problems[id]; ok {
		p.status.Status = StatusCancelled
		writeJSON(w, http.StatusOK, p.status)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{"error_msg": "Problem does not exist"})
}

// answer decodes the submitted qp problem against the solver's graph and
// returns the all-up and all-down states with their energies.
func (f *fakeAPI) answer(req ProblemRequest) (*Answer, error) {
	var props *Properties
	for i := range f.solvers {
		if f.solvers[i].ID == req.Solver {
			props = &f.solvers[i].Properties
		}
	}
	if props == nil {
		return nil, fmt.Errorf("unknown solver %s", req.Solver)
	}

	lin, err := decodeFloat64s(req.Data.Lin)
	if err != nil {
		return nil, err
	}
	quad, err := decodeFloat64s(req.Data.Quad)
	if err != nil {
		return nil, err
	}
	qubits := append([]int(nil), props.Qubits...)
	sort.Ints(qubits)
	if len(lin) != len(qubits) {
		return nil, fmt.Errorf("lin has %d entries for %d qubits", len(lin), len(qubits))
	}

	active := make(map[int]bool)
	var activeList []int32
	var hSum float64
	for i, q := range qubits {
		if math.IsNaN(lin[i]) {
			continue
		}
		active[q] = true
		activeList = append(activeList, int32(q))
		hSum += lin[i]
	}
	var jSum float64
	k := 0
	for _, c := range props.Couplers {
		if active[c[0]] && active[c[1]] {
			jSum += quad[k]
			k++
		}
	}
	if k != len(quad) {
		return nil, fmt.Errorf("quad has %d entries for %d active couplers", len(quad), k)
	}

	reads := 1
	if n, ok := req.Params["num_reads"].(float64); ok {
		reads = int(n)
	}
	up := make([]int8, len(activeList))
	down := make([]int8, len(activeList))
	for i := range up {
		up[i] = 1
		down[i] = -1
	}
	upEnergy, downEnergy := hSum+jSum, -hSum+jSum
	samples := [][]int8{up, down}
	energies := []float64{upEnergy, downEnergy}
	occurrences := []int32{int32(reads - reads/2), int32(reads / 2)}
	if reads == 1 {
		samples, energies, occurrences = samples[:1], energies[:1], occurrences[:1]
	}

	return &Answer{
		Format:          qpFormat,
		NumVariables:    props.NumQubits,
		ActiveVariables: encodeInt32s(activeList),
		Solutions:       packSolutions(samples),
		Energies:        encodeFloat64s(energies),
		NumOccurrences:  encodeInt32s(occurrences),
		Timing:          map[string]float64{"qpu_access_time": 1234.5, "qpu_anneal_time_per_sample": 20},
	}, nil
}

func (f *fakeAPI) submissions() []ProblemRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ProblemRequest(nil), f.submitted...)
}

func (f *fakeAPI) cancellations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testClient returns a client for srv with millisecond polling.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	c, err := NewClient(Options{
		Endpoint:        srv.URL + "/sapi/v2",
		Token:           testToken,
		PollInterval:    time.Millisecond,
		PollMaxInterval: 4 * time.Millisecond,
		Logger:          zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

// pathSolver describes a QPU whose working qubits form one path through
// the given qubit ids, in order.
func pathSolver(id string, qubits ...int) SolverDescription {
	couplers := make([][2]int, 0, len(qubits))
	for i := 0; i+1 < len(qubits); i++ {
		couplers = append(couplers, [2]int{qubits[i], qubits[i+1]})
	}
	max := 0
	for _, q := range qubits {
		if q > max {
			max = q
		}
	}
	return SolverDescription{
		ID:     id,
		Status: "ONLINE",
		Properties: Properties{
			NumQubits:               max + 1,
			Qubits:                  qubits,
			Couplers:                couplers,
			HRange:                  [2]float64{-2, 2},
			JRange:                  [2]float64{-1, 1},
			AnnealingTimeRange:      [2]float64{0.5, 2000},
			DefaultAnnealingTime:    20,
			MaxAnnealSchedulePoints: 12,
			NumReadsRange:           [2]int{1, 10000},
			Category:                "qpu",
			SupportedProblemTypes:   []string{"ising", "qubo"},
			Parameters: map[string]string{
				"num_reads":       "Number of states to read",
				"annealing_time":  "Quantum annealing duration in microseconds",
				"anneal_schedule": "Annealing schedule",
			},
			Topology: Topology{Type: "pegasus", Shape: []int{16}},
		},
	}
}

func encodeInt32s(values []int32) string {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// packSolutions is the inverse of the unpacking in decodeAnswer.
func packSolutions(samples [][]int8) string {
	if len(samples) == 0 {
		return ""
	}
	rowBytes := (len(samples[0]) + 7) / 8
	buf := make([]byte, rowBytes*len(samples))
	for i, s := range samples {
		for j, v := range s {
			if v > 0 {
				buf[i*rowBytes+j/8] |= 0x80 >> (j % 8)
			}
		}
	}
	return base64.StdEncoding.EncodeToString(buf)
}
