package sampler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Vartype of every sample set produced here.
const Vartype = "SPIN"

// Record is one distinct sample with its energy and how many reads
// produced it.
type Record struct {
	Sample         []int8  `json:"sample"`
	Energy         float64 `json:"energy"`
	NumOccurrences int     `json:"num_occurrences"`
}

// SampleSet is the collection of samples returned for one submission.
// Records are distinct and ordered by ascending energy.
type SampleSet struct {
	Variables []int                  `json:"variables"`
	Records   []Record               `json:"records"`
	Info      map[string]interface{} `json:"info,omitempty"`
}

// NewSampleSet aggregates raw reads into a SampleSet. samples, energies and
// occurrences are parallel; occurrences may be nil, meaning one read each.
func NewSampleSet(variables []int, samples [][]int8, energies []float64, occurrences []int, info map[string]interface{}) (*SampleSet, error) {
	if len(samples) != len(energies) {
		return nil, fmt.Errorf("got %d samples and %d energies", len(samples), len(energies))
	}
	if occurrences != nil && len(occurrences) != len(samples) {
		return nil, fmt.Errorf("got %d samples and %d occurrence counts", len(samples), len(occurrences))
	}

	index := make(map[string]int, len(samples))
	records := make([]Record, 0, len(samples))
	for i, s := range samples {
		if len(s) != len(variables) {
			return nil, fmt.Errorf("sample %d has %d values for %d variables", i, len(s), len(variables))
		}
		n := 1
		if occurrences != nil {
			n = occurrences[i]
		}
		key := sampleKey(s)
		if at, ok := index[key]; ok {
			records[at].NumOccurrences += n
			continue
		}
		index[key] = len(records)
		records = append(records, Record{
			Sample:         append([]int8(nil), s...),
			Energy:         energies[i],
			NumOccurrences: n,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Energy != records[j].Energy {
			return records[i].Energy < records[j].Energy
		}
		return records[i].NumOccurrences > records[j].NumOccurrences
	})

	if info == nil {
		info = make(map[string]interface{})
	}
	return &SampleSet{
		Variables: append([]int(nil), variables...),
		Records:   records,
		Info:      info,
	}, nil
}

func sampleKey(s []int8) string {
	b := make([]byte, len(s))
	for i, v := range s {
		if v > 0 {
			b[i] = '+'
		} else {
			b[i] = '-'
		}
	}
	return string(b)
}

// Len returns the number of distinct samples.
func (s *SampleSet) Len() int {
	return len(s.Records)
}

// NumReads returns the total number of reads across all records.
func (s *SampleSet) NumReads() int {
	var n int
	for _, r := range s.Records {
		n += r.NumOccurrences
	}
	return n
}

// First returns the lowest-energy record. ok is false for an empty set.
func (s *SampleSet) First() (r Record, ok bool) {
	if len(s.Records) == 0 {
		return Record{}, false
	}
	return s.Records[0], true
}

// EnergyStats returns the read-weighted mean and standard deviation of the
// energies.
func (s *SampleSet) EnergyStats() (mean, std float64) {
	if len(s.Records) == 0 {
		return math.NaN(), math.NaN()
	}
	energies := make([]float64, len(s.Records))
	weights := make([]float64, len(s.Records))
	for i, r := range s.Records {
		energies[i] = r.Energy
		weights[i] = float64(r.NumOccurrences)
	}
	mean = stat.Mean(energies, weights)
	if s.NumReads() < 2 {
		return mean, 0
	}
	return mean, stat.StdDev(energies, weights)
}

// Bin is one energy level of a histogram.
type Bin struct {
	Energy float64 `json:"energy"`
	Count  int     `json:"count"`
}

// Histogram returns the number of reads at each distinct energy, lowest
// energy first.
func (s *SampleSet) Histogram() []Bin {
	var bins []Bin
	for _, r := range s.Records {
		if n := len(bins); n > 0 && sameEnergy(bins[n-1].Energy, r.Energy) {
			bins[n-1].Count += r.NumOccurrences
			continue
		}
		bins = append(bins, Bin{Energy: r.Energy, Count: r.NumOccurrences})
	}
	return bins
}

// FractionAt returns the share of reads whose energy equals energy.
func (s *SampleSet) FractionAt(energy float64) float64 {
	total := s.NumReads()
	if total == 0 {
		return 0
	}
	var hits int
	for _, r := range s.Records {
		if sameEnergy(r.Energy, energy) {
			hits += r.NumOccurrences
		}
	}
	return float64(hits) / float64(total)
}

func sameEnergy(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// Truncate returns a copy holding only the n lowest-energy records.
func (s *SampleSet) Truncate(n int) *SampleSet {
	if n >= len(s.Records) {
		n = len(s.Records)
	}
	return &SampleSet{
		Variables: s.Variables,
		Records:   append([]Record(nil), s.Records[:n]...),
		Info:      s.Info,
	}
}

// Summary is a one-line description in the style "['SPIN', 2 rows, 100
// samples, 10 variables]".
func (s *SampleSet) Summary() string {
	return fmt.Sprintf("['%s', %d rows, %d samples, %d variables]", Vartype, s.Len(), s.NumReads(), len(s.Variables))
}

func (s *SampleSet) String() string {
	var b strings.Builder
	_ = s.Format(&b, FormatOptions{})
	return b.String()
}
