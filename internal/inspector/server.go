// Package inspector serves sample sets over HTTP so they can be examined in
// a browser or fetched as JSON.
package inspector

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/copyleftdev/fmchain/internal/config"
	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/logging"
	"github.com/copyleftdev/fmchain/internal/metrics"
	"github.com/copyleftdev/fmchain/internal/sampler"
)

const component = "inspector"

// ErrNotFound is returned for an unknown sample set id.
var ErrNotFound = apperrors.New("sample set not found").WithComponent(component).WithKind(apperrors.KindUnavailable)

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Entry is one registered sample set.
type Entry struct {
	ID        string             `json:"id"`
	Label     string             `json:"label"`
	Created   time.Time          `json:"created"`
	SampleSet *sampler.SampleSet `json:"sampleset"`

	viewOnce sync.Once
	viewed   chan struct{}
}

// Viewed is closed once the entry's page has been served.
func (e *Entry) Viewed() <-chan struct{} {
	return e.viewed
}

func (e *Entry) markViewed() {
	e.viewOnce.Do(func() { close(e.viewed) })
}

// Stats are the headline numbers of an entry.
type Stats struct {
	NumReads     int     `json:"num_reads"`
	Distinct     int     `json:"distinct"`
	LowestEnergy float64 `json:"lowest_energy"`
	MeanEnergy   float64 `json:"mean_energy"`
	StdEnergy    float64 `json:"std_energy"`
	LowestShare  float64 `json:"lowest_share"`
}

func (e *Entry) stats() Stats {
	ss := e.SampleSet
	st := Stats{NumReads: ss.NumReads(), Distinct: ss.Len()}
	if first, ok := ss.First(); ok {
		st.LowestEnergy = first.Energy
		st.LowestShare = ss.FractionAt(first.Energy)
		st.MeanEnergy, st.StdEnergy = ss.EnergyStats()
	}
	return st
}

// Server holds sample sets in memory and serves them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*Entry
	baseURL string

	httpServer *http.Server
}

// NewServer creates an inspector. m may be nil, in which case /metrics is
// not served.
func NewServer(cfg *config.Config, logger Logger, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		entries: make(map[string]*Entry),
		baseURL: fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Inspector.Host, fmt.Sprint(cfg.Inspector.Port))),
	}
}

// Show registers ss under a new id and returns the URL of its page.
func (s *Server) Show(label string, ss *sampler.SampleSet) string {
	return s.PageURL(s.Register(label, ss))
}

// Register stores ss under a new id.
func (s *Server) Register(label string, ss *sampler.SampleSet) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		Label:     label,
		Created:   time.Now().UTC(),
		SampleSet: ss,
		viewed:    make(chan struct{}),
	}

	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()

	s.logger.Info("Sample set registered", map[string]interface{}{
		"id":    e.ID,
		"label": label,
		"rows":  ss.Len(),
	})
	return e
}

// PageURL returns the URL of e's page.
func (s *Server) PageURL(e *Entry) string {
	return s.URL() + "/inspect/" + e.ID
}

// Get returns the entry with the given id.
func (s *Server) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, apperrors.Wrapf(ErrNotFound, "id %s", id).WithComponent(component).WithOperation("Get")
	}
	return e, nil
}

// List returns every entry, oldest first.
func (s *Server) List() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Handler returns the inspector's router with its middleware stack.
func (s *Server) Handler() http.Handler {
	base := s.logger.WithFields(map[string]interface{}{"component": component})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(base))
	r.Use(apperrors.RecoveryMiddleware(base))
	r.Use(apperrors.ErrorHandler(base))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Debug("Health check")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the inspector endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/samplesets", s.handleList)
		r.Get("/samplesets/{id}", s.handleGet)
		r.Get("/samplesets/{id}/histogram", s.handleHistogram)
	})
	r.Get("/inspect/{id}", s.handlePage)
	r.Get("/", s.handleIndex)

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Start listens on the configured address and serves in the background.
// With port 0 the kernel picks a free port; URLs returned by Show use it.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Inspector.Host, fmt.Sprint(s.cfg.Inspector.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return apperrors.Wrapf(err, "listen on %s", addr).WithComponent(component).WithOperation("Start")
	}

	s.mu.Lock()
	s.baseURL = "http://" + ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Starting inspector", map[string]interface{}{"address": ln.Addr().String()})
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Inspector stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

// URL returns the base URL the inspector is reachable at.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

// Shutdown stops the HTTP server, waiting for open requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("Shutting down inspector...")
	if err := srv.Shutdown(ctx); err != nil {
		return apperrors.Wrap(err, "shutdown").WithComponent(component).WithOperation("Shutdown")
	}
	s.logger.Info("Inspector stopped")
	return nil
}
