package sampler

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/termenv"
)

// FormatOptions controls Format.
type FormatOptions struct {
	// MaxRows limits the rows printed; 0 prints every record.
	MaxRows int
	// Profile selects terminal colours when Color is set.
	Profile termenv.Profile
	// Color enables highlighting of the lowest-energy rows.
	Color bool
}

// Format writes the sample set as a table with one column per variable
// followed by energy and num_oc., then the summary line.
func (s *SampleSet) Format(w io.Writer, opts FormatOptions) error {
	profile := opts.Profile

	rows := s.Records
	if opts.MaxRows > 0 && len(rows) > opts.MaxRows {
		rows = rows[:opts.MaxRows]
	}

	idxWidth := len(strconv.Itoa(max(len(rows)-1, 0)))
	colWidth := make([]int, len(s.Variables))
	for i, v := range s.Variables {
		colWidth[i] = max(len(strconv.Itoa(v)), 2)
	}
	energies := make([]string, len(rows))
	energyWidth := len("energy")
	for i, r := range rows {
		energies[i] = strconv.FormatFloat(r.Energy, 'f', 1, 64)
		energyWidth = max(energyWidth, len(energies[i]))
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", idxWidth))
	for i, v := range s.Variables {
		fmt.Fprintf(&b, " %*d", colWidth[i], v)
	}
	fmt.Fprintf(&b, " %*s num_oc.\n", energyWidth, "energy")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	var lowest float64
	if len(rows) > 0 {
		lowest = rows[0].Energy
	}
	for i, r := range rows {
		b.Reset()
		fmt.Fprintf(&b, "%*d", idxWidth, i)
		for j, spin := range r.Sample {
			cell := "-1"
			if spin > 0 {
				cell = "+1"
			}
			fmt.Fprintf(&b, " %*s", colWidth[j], cell)
		}
		fmt.Fprintf(&b, " %*s %7d", energyWidth, energies[i], r.NumOccurrences)
		line := b.String()
		if opts.Color && sameEnergy(r.Energy, lowest) {
			line = profile.String(line).Foreground(profile.Color("2")).Bold().String()
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}

	if len(rows) < len(s.Records) {
		if _, err := fmt.Fprintf(w, "... %d more rows\n", len(s.Records)-len(rows)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, s.Summary()+"\n")
	return err
}
