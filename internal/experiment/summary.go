package experiment

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/fmchain/internal/ising"
	"github.com/copyleftdev/fmchain/internal/sampler"
)

// Summary condenses a sample set of a chain problem.
type Summary struct {
	Timing          string  `json:"timing"`
	NumReads        int     `json:"num_reads"`
	Distinct        int     `json:"distinct"`
	LowestEnergy    float64 `json:"lowest_energy"`
	GroundEnergy    float64 `json:"ground_energy"`
	GroundFraction  float64 `json:"ground_fraction"`
	MeanEnergy      float64 `json:"mean_energy"`
	StdEnergy       float64 `json:"std_energy"`
	MeanDomainWalls float64 `json:"mean_domain_walls"`
}

// Summarize computes the statistics of ss against m. GroundEnergy and
// GroundFraction are NaN when m's ground energy has no closed form.
func Summarize(m *ising.Model, ss *sampler.SampleSet, timing string) (Summary, error) {
	s := Summary{
		Timing:         timing,
		NumReads:       ss.NumReads(),
		Distinct:       ss.Len(),
		LowestEnergy:   math.NaN(),
		GroundEnergy:   math.NaN(),
		GroundFraction: math.NaN(),
	}
	s.MeanEnergy, s.StdEnergy = ss.EnergyStats()
	if first, ok := ss.First(); ok {
		s.LowestEnergy = first.Energy
	}
	if ground, ok := m.ChainGroundEnergy(); ok {
		s.GroundEnergy = ground
		s.GroundFraction = ss.FractionAt(ground)
	}

	walls := make([]float64, len(ss.Records))
	weights := make([]float64, len(ss.Records))
	for i, r := range ss.Records {
		n, err := m.Unsatisfied(r.Sample)
		if err != nil {
			return Summary{}, err
		}
		walls[i] = float64(n)
		weights[i] = float64(r.NumOccurrences)
	}
	s.MeanDomainWalls = math.NaN()
	if len(walls) > 0 {
		s.MeanDomainWalls = stat.Mean(walls, weights)
	}
	return s, nil
}

// WriteTable prints summaries one per line.
func WriteTable(w io.Writer, summaries []Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "timing\treads\tdistinct\tlowest\tground frac.\tmean E\tstd E\twalls\t")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%g\t%.3f\t%.3f\t%.3f\t%.2f\t\n",
			s.Timing, s.NumReads, s.Distinct, s.LowestEnergy,
			s.GroundFraction, s.MeanEnergy, s.StdEnergy, s.MeanDomainWalls)
	}
	return tw.Flush()
}
