package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/fmchain/internal/config"
	"github.com/copyleftdev/fmchain/internal/experiment"
	"github.com/copyleftdev/fmchain/internal/sapi"
)

func newSolversCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "solvers",
		Short: "List the solvers visible to the configured API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			if e.cfg.Solver.Backend != config.BackendQPU {
				fmt.Fprintf(cmd.OutOrStdout(), "backend %q has no remote solvers\n", e.cfg.Solver.Backend)
				return nil
			}
			ctx, stop := e.context(cmd.Context())
			defer stop()

			client, err := experiment.NewClient(e.cfg, e.logger)
			if err != nil {
				return err
			}
			solvers, err := client.Solvers(ctx)
			if err != nil {
				return err
			}

			filter := sapi.QPUOnly()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tQUBITS\tTOPOLOGY\tLOAD\tPROBLEM TYPES")
			for i := range solvers {
				d := &solvers[i]
				if !all && !filter.Match(d) {
					continue
				}
				load := "-"
				if d.AvgLoad != nil {
					load = fmt.Sprintf("%.2f", *d.AvgLoad)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					d.ID, d.Status, len(d.Properties.Qubits), d.Properties.Topology.Type, load,
					strings.Join(d.Properties.SupportedProblemTypes, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include offline and non-QPU solvers")
	return cmd
}
