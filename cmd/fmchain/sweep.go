package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/fmchain/internal/experiment"
)

func newSweepCmd() *cobra.Command {
	var (
		f     runFlags
		times []float64
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the chain once per annealing time and compare the results",
		Example: `  fmchain sweep --annealing-times 1,20,200
  fmchain sweep --annealing-times 5,50 --qubits 20 --num-reads 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(times) == 0 {
				return fmt.Errorf("--annealing-times needs at least one value")
			}
			exp, err := f.experiment(cmd)
			if err != nil {
				return err
			}

			e, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := e.context(cmd.Context())
			defer stop()

			s, err := e.sampler(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Solver: %s\n", s.Name())
			summaries, err := exp.Sweep(ctx, s, times)
			if werr := experiment.WriteTable(cmd.OutOrStdout(), summaries); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.Float64SliceVar(&times, "annealing-times", []float64{1, 20, 200}, "annealing times in microseconds")
	f.register(flags)
	return cmd
}
