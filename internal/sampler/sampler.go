// Package sampler defines the contract for submitting an Ising problem to an
// annealer and the sample set it returns.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/copyleftdev/fmchain/internal/ising"
	"github.com/copyleftdev/fmchain/internal/schedule"
)

var (
	// ErrConflictingTiming is returned when a submission sets both an
	// annealing time and an anneal schedule.
	ErrConflictingTiming = errors.New("annealing_time and anneal_schedule are mutually exclusive")
	// ErrInvalidReads is returned for a non-positive read count.
	ErrInvalidReads = errors.New("num_reads must be a positive integer")
	// ErrInvalidAnnealingTime is returned for an annealing time that is not a
	// positive finite number.
	ErrInvalidAnnealingTime = errors.New("annealing_time must be a positive finite number")
)

// Sampler submits Ising problems and blocks until the samples are back.
type Sampler interface {
	// Name identifies the solver behind the sampler.
	Name() string
	// SampleIsing runs p.NumReads anneal-and-read cycles of m.
	SampleIsing(ctx context.Context, m *ising.Model, p Params) (*SampleSet, error)
}

// Params are the per-submission solver parameters. At most one of
// AnnealingTime and AnnealSchedule may be set; when neither is, the solver
// default applies.
type Params struct {
	// NumReads is the number of anneal-and-read cycles.
	NumReads int
	// AnnealingTime is the duration of a standard forward anneal, in µs.
	AnnealingTime *float64
	// AnnealSchedule replaces the standard anneal with a custom curve.
	AnnealSchedule schedule.Schedule
}

// WithAnnealingTime returns params using a scalar annealing time.
func WithAnnealingTime(numReads int, us float64) Params {
	return Params{NumReads: numReads, AnnealingTime: &us}
}

// WithSchedule returns params using an anneal schedule.
func WithSchedule(numReads int, sc schedule.Schedule) Params {
	return Params{NumReads: numReads, AnnealSchedule: sc}
}

// Validate checks the read count and that only one timing is supplied.
func (p Params) Validate() error {
	if p.NumReads < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidReads, p.NumReads)
	}
	if p.AnnealingTime != nil && p.AnnealSchedule != nil {
		return ErrConflictingTiming
	}
	if t := p.AnnealingTime; t != nil && (!(*t > 0) || math.IsInf(*t, 1)) {
		return fmt.Errorf("%w, got %g", ErrInvalidAnnealingTime, *p.AnnealingTime)
	}
	if p.AnnealSchedule != nil {
		if err := p.AnnealSchedule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Schedule returns the effective anneal curve: the custom schedule, a
// linear ramp over AnnealingTime, or the default ramp.
func (p Params) Schedule() schedule.Schedule {
	switch {
	case p.AnnealSchedule != nil:
		return p.AnnealSchedule
	case p.AnnealingTime != nil:
		return schedule.Default(*p.AnnealingTime)
	default:
		return schedule.Default(schedule.DefaultAnnealingTime)
	}
}

// Timing describes the timing choice for logs and reports.
func (p Params) Timing() string {
	switch {
	case p.AnnealSchedule != nil:
		return "anneal_schedule=" + p.AnnealSchedule.String()
	case p.AnnealingTime != nil:
		return fmt.Sprintf("annealing_time=%gus", *p.AnnealingTime)
	default:
		return "default"
	}
}
