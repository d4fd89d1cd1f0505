// Package metrics exposes Prometheus collectors for problem submissions.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
	"github.com/copyleftdev/fmchain/internal/ising"
	"github.com/copyleftdev/fmchain/internal/sampler"
)

const namespace = "fmchain"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	reads       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	groundState *prometheus.GaugeVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Problem submissions by solver and outcome.",
			},
			[]string{"solver", "outcome"},
		),
		reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reads_total",
				Help:      "Anneal-and-read cycles returned by solver.",
			},
			[]string{"solver"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submission_duration_seconds",
				Help:      "Wall time from submission to answer.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"solver"},
		),
		groundState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ground_state_fraction",
				Help:      "Fraction of reads of the last chain problem that reached the ground state.",
			},
			[]string{"solver"},
		),
	}
	m.registry.MustRegister(
		m.submissions,
		m.reads,
		m.latency,
		m.groundState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe records one finished submission.
func (m *Metrics) Observe(solver string, model *ising.Model, ss *sampler.SampleSet, elapsed time.Duration, err error) {
	m.submissions.WithLabelValues(solver, outcome(err)).Inc()
	if err != nil {
		return
	}
	m.latency.WithLabelValues(solver).Observe(elapsed.Seconds())
	m.reads.WithLabelValues(solver).Add(float64(ss.NumReads()))
	if ground, ok := model.ChainGroundEnergy(); ok {
		m.groundState.WithLabelValues(solver).Set(ss.FractionAt(ground))
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if apperrors.Is(err, context.Canceled) || apperrors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return apperrors.KindOf(err).String()
}

// Instrument wraps s so every SampleIsing call is observed.
func (m *Metrics) Instrument(s sampler.Sampler) sampler.Sampler {
	return &instrumented{Sampler: s, metrics: m}
}

type instrumented struct {
	sampler.Sampler
	metrics *Metrics
}

func (i *instrumented) SampleIsing(ctx context.Context, model *ising.Model, p sampler.Params) (*sampler.SampleSet, error) {
	start := time.Now()
	ss, err := i.Sampler.SampleIsing(ctx, model, p)
	i.metrics.Observe(i.Name(), model, ss, time.Since(start), err)
	return ss, err
}
