// Package schedule models a piecewise-linear anneal schedule: checkpoints of
// (time in microseconds, normalized anneal progress s).
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAnnealingTime is the solver default annealing time in microseconds.
const DefaultAnnealingTime = 20.0

var (
	// ErrTooShort is returned for schedules with fewer than two points.
	ErrTooShort = errors.New("anneal schedule needs at least two points")
	// ErrBadStart is returned when the first point is not (0, 0).
	ErrBadStart = errors.New("anneal schedule must start at (0, 0)")
	// ErrTimeOrder is returned when times do not strictly increase.
	ErrTimeOrder = errors.New("anneal schedule times must strictly increase")
	// ErrProgressOrder is returned when s decreases between points.
	ErrProgressOrder = errors.New("anneal schedule progress must not decrease")
	// ErrProgressRange is returned when s falls outside [0, 1].
	ErrProgressRange = errors.New("anneal schedule progress must be within [0, 1]")
	// ErrNotFinite is returned when a time or progress is NaN or infinite.
	ErrNotFinite = errors.New("anneal schedule times and progress must be finite numbers")
)

// Point is one checkpoint of a schedule.
type Point struct {
	// Time since the start of the anneal, in microseconds.
	Time float64
	// S is the normalized anneal progress, 0 at the start and 1 at the end.
	S float64
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.Time, p.S)
}

// Schedule is an ordered sequence of checkpoints.
type Schedule []Point

// Default returns the standard forward anneal [(0, 0), (t, 1)].
func Default(t float64) Schedule {
	return Schedule{{0, 0}, {t, 1}}
}

// WithPause ramps to s in ramp µs, holds for pause µs and finishes the
// anneal at total µs.
func WithPause(ramp, s, pause, total float64) Schedule {
	return Schedule{{0, 0}, {ramp, s}, {ramp + pause, s}, {total, 1}}
}

// WithQuench ramps to s in ramp µs and then completes the anneal in quench µs.
func WithQuench(ramp, s, quench float64) Schedule {
	return Schedule{{0, 0}, {ramp, s}, {ramp + quench, 1}}
}

// Validate checks the shape of a forward anneal schedule.
func (sc Schedule) Validate() error {
	if len(sc) < 2 {
		return ErrTooShort
	}
	for i, p := range sc {
		if !finite(p.Time) || !finite(p.S) {
			return fmt.Errorf("%w: point %d is %v", ErrNotFinite, i, p)
		}
	}
	if sc[0].Time != 0 || sc[0].S != 0 {
		return fmt.Errorf("%w, got %v", ErrBadStart, sc[0])
	}
	// Comparisons are written so that they fail for NaN.
	for i, p := range sc {
		if !(p.S >= 0 && p.S <= 1) {
			return fmt.Errorf("%w: point %d is %v", ErrProgressRange, i, p)
		}
		if i == 0 {
			continue
		}
		prev := sc[i-1]
		if !(p.Time > prev.Time) {
			return fmt.Errorf("%w: point %d %v follows %v", ErrTimeOrder, i, p, prev)
		}
		if !(p.S >= prev.S) {
			return fmt.Errorf("%w: point %d %v follows %v", ErrProgressOrder, i, p, prev)
		}
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Duration returns the time of the last point.
func (sc Schedule) Duration() float64 {
	if len(sc) == 0 {
		return 0
	}
	return sc[len(sc)-1].Time
}

// Final returns the progress of the last point.
func (sc Schedule) Final() float64 {
	if len(sc) == 0 {
		return 0
	}
	return sc[len(sc)-1].S
}

// At returns s at time t by linear interpolation. Times before the first
// point clamp to its s, times after the last point clamp to the last s.
func (sc Schedule) At(t float64) float64 {
	if len(sc) == 0 {
		return 0
	}
	if t <= sc[0].Time {
		return sc[0].S
	}
	for i := 1; i < len(sc); i++ {
		a, b := sc[i-1], sc[i]
		if t <= b.Time {
			return a.S + (b.S-a.S)*(t-a.Time)/(b.Time-a.Time)
		}
	}
	return sc[len(sc)-1].S
}

// MaxSlope returns the steepest ds/dt across all segments, in 1/µs.
func (sc Schedule) MaxSlope() float64 {
	var max float64
	for i := 1; i < len(sc); i++ {
		dt := sc[i].Time - sc[i-1].Time
		if dt <= 0 {
			continue
		}
		if slope := (sc[i].S - sc[i-1].S) / dt; slope > max {
			max = slope
		}
	}
	return max
}

// Pairs returns the schedule as [[t, s], ...], the form solvers accept.
func (sc Schedule) Pairs() [][2]float64 {
	out := make([][2]float64, len(sc))
	for i, p := range sc {
		out[i] = [2]float64{p.Time, p.S}
	}
	return out
}

// FromPairs is the inverse of Pairs.
func FromPairs(pairs [][2]float64) Schedule {
	sc := make(Schedule, len(pairs))
	for i, p := range pairs {
		sc[i] = Point{Time: p[0], S: p[1]}
	}
	return sc
}

func (sc Schedule) String() string {
	parts := make([]string, len(sc))
	for i, p := range sc {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Parse reads a schedule written as whitespace or ';' separated "t,s" pairs,
// for example "0,0 15,0.4 20,0.4 30,1". The result is validated.
func Parse(text string) (Schedule, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	sc := make(Schedule, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "()[]")
		ts, ss, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("schedule point %q is not of the form t,s", f)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(ts), 64)
		if err != nil {
			return nil, fmt.Errorf("schedule point %q: bad time: %w", f, err)
		}
		s, err := strconv.ParseFloat(strings.TrimSpace(ss), 64)
		if err != nil {
			return nil, fmt.Errorf("schedule point %q: bad progress: %w", f, err)
		}
		sc = append(sc, Point{Time: t, S: s})
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// MarshalJSON encodes the schedule as [[t, s], ...].
func (sc Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(sc.Pairs())
}

// UnmarshalJSON decodes [[t, s], ...].
func (sc *Schedule) UnmarshalJSON(data []byte) error {
	var pairs [][2]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	*sc = FromPairs(pairs)
	return nil
}

// MarshalYAML encodes the schedule as a list of [t, s] pairs.
func (sc Schedule) MarshalYAML() (interface{}, error) {
	return sc.Pairs(), nil
}

// UnmarshalYAML decodes a list of [t, s] pairs.
func (sc *Schedule) UnmarshalYAML(value *yaml.Node) error {
	var pairs [][]float64
	if err := value.Decode(&pairs); err != nil {
		return err
	}
	out := make(Schedule, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return fmt.Errorf("line %d: schedule point %v is not a [t, s] pair", value.Line, p)
		}
		out[i] = Point{Time: p[0], S: p[1]}
	}
	*sc = out
	return nil
}
