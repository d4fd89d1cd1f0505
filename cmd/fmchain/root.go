package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os/signal"
	"syscall"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/copyleftdev/fmchain/internal/config"
	"github.com/copyleftdev/fmchain/internal/experiment"
	"github.com/copyleftdev/fmchain/internal/inspector"
	"github.com/copyleftdev/fmchain/internal/logging"
	"github.com/copyleftdev/fmchain/internal/metrics"
	"github.com/copyleftdev/fmchain/internal/sampler"
	"github.com/copyleftdev/fmchain/internal/schedule"
)

// env is what every command needs before it can talk to a sampler.
type env struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &env{cfg: cfg, logger: logger, metrics: metrics.New()}, nil
}

// context returns a context carrying the logger that ends on SIGINT or
// SIGTERM.
func (e *env) context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	ctxLogger := &logging.CtxLogger{Logger: e.logger.WithFields(map[string]interface{}{
		"service": "fmchain",
		"backend": e.cfg.Solver.Backend,
	})}
	return ctxLogger.WithContext(ctx), stop
}

func (e *env) sampler(ctx context.Context) (sampler.Sampler, error) {
	s, err := experiment.NewSampler(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, err
	}
	return e.metrics.Instrument(s), nil
}

type runFlags struct {
	configPath     string
	qubits         int
	bias           float64
	coupling       float64
	annealingTime  float64
	annealSchedule string
	numReads       int
	maxRows        int
	noColor        bool
	noInspect      bool
	serve          bool
}

// register adds the chain and read-count flags shared by every command that
// runs the experiment.
func (f *runFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "", "YAML experiment file; flags override its values")
	flags.IntVarP(&f.qubits, "qubits", "n", 10, "number of qubits in the chain")
	flags.Float64Var(&f.bias, "bias", 0, "bias h applied to every qubit")
	flags.Float64VarP(&f.coupling, "coupling", "J", -1, "coupling strength between neighbours (negative is ferromagnetic)")
	flags.IntVarP(&f.numReads, "num-reads", "r", 100, "number of anneal-and-read cycles")
}

func newRootCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "fmchain",
		Short: "Sample a ferromagnetic Ising chain on a quantum annealer",
		Long: `fmchain builds a chain of qubits coupled ferromagnetically, submits it to a
D-Wave solver (or the simulated annealer when SAMPLER_BACKEND=simulated) and
prints the sample set that comes back. The sample set is then opened in the
inspector; the command waits until its page has been loaded once.

With no flags it runs 10 unbiased qubits coupled at -1 with the schedule
[(0, 0), (20, 1)] and 100 reads.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := f.experiment(cmd)
			if err != nil {
				return err
			}
			return run(cmd, exp, f)
		},
	}

	flags := cmd.Flags()
	f.register(flags)
	flags.Float64Var(&f.annealingTime, "annealing-time", 0, "anneal duration in microseconds (excludes --anneal-schedule)")
	flags.StringVar(&f.annealSchedule, "anneal-schedule", "", `anneal schedule as "t,s" pairs, e.g. "0,0 10,0.4 60,0.4 70,1"`)
	flags.IntVar(&f.maxRows, "rows", 20, "rows of the sample set to print (0 prints all)")
	flags.BoolVar(&f.noColor, "no-color", false, "disable coloured output")
	flags.BoolVar(&f.noInspect, "no-inspect", false, "print the sample set without opening it in the inspector")
	flags.BoolVar(&f.serve, "serve", false, "keep the inspector running until interrupted instead of stopping after the first view")
	cmd.MarkFlagsMutuallyExclusive("no-inspect", "serve")

	cmd.AddCommand(newSolversCmd(), newSweepCmd())
	return cmd
}

// experiment resolves the run from the defaults, the --config file and the
// flags the user changed, in that order.
func (f *runFlags) experiment(cmd *cobra.Command) (*experiment.Experiment, error) {
	exp := experiment.Default()
	if f.configPath != "" {
		loaded, err := experiment.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		exp = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("annealing-time") && flags.Changed("anneal-schedule") {
		return nil, fmt.Errorf("--annealing-time and --anneal-schedule are mutually exclusive: %w", sampler.ErrConflictingTiming)
	}
	if flags.Changed("qubits") {
		exp.NumQubits = f.qubits
	}
	if flags.Changed("bias") {
		exp.QubitBias = f.bias
	}
	if flags.Changed("coupling") {
		exp.CouplerStrength = f.coupling
	}
	if flags.Changed("num-reads") {
		exp.NumReads = f.numReads
	}
	if flags.Changed("annealing-time") {
		exp = exp.WithAnnealingTime(f.annealingTime)
	}
	if flags.Changed("anneal-schedule") {
		sc, err := schedule.Parse(f.annealSchedule)
		if err != nil {
			return nil, fmt.Errorf("--anneal-schedule: %w", err)
		}
		exp = exp.WithAnnealSchedule(sc)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

func run(cmd *cobra.Command, exp *experiment.Experiment, f runFlags) error {
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
	res, err := exp.Run(ctx, s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := printResult(out, res, f); err != nil {
		return err
	}
	if f.noInspect {
		return nil
	}
	return inspect(ctx, e, out, res, f.serve)
}

func printResult(w io.Writer, res *experiment.Result, f runFlags) error {
	profile := termenv.NewOutput(w).EnvColorProfile()
	fmt.Fprintf(w, "Solver: %s\n", res.Solver)
	fmt.Fprintf(w, "Problem: %s\n", res.Experiment)
	fmt.Fprintln(w, "QPU response")
	if err := res.SampleSet.Format(w, sampler.FormatOptions{
		MaxRows: f.maxRows,
		Profile: profile,
		Color:   !f.noColor && profile != termenv.Ascii,
	}); err != nil {
		return err
	}
	sum := res.Summary
	if !math.IsNaN(sum.GroundFraction) {
		fmt.Fprintf(w, "ground state %g reached by %.1f%% of reads; ", sum.GroundEnergy, 100*sum.GroundFraction)
	} else {
		fmt.Fprintf(w, "lowest energy %g; ", sum.LowestEnergy)
	}
	fmt.Fprintf(w, "mean energy %.3f, mean domain walls %.2f\n", sum.MeanEnergy, sum.MeanDomainWalls)
	return nil
}

// inspect publishes the result in the inspector and blocks until its page
// has been loaded once, or until ctx ends when keepOpen is set.
func inspect(ctx context.Context, e *env, w io.Writer, res *experiment.Result, keepOpen bool) error {
	srv := inspector.NewServer(e.cfg, e.logger, e.metrics)
	if err := srv.Start(); err != nil {
		return err
	}
	entry := srv.Register(res.Experiment.String(), res.SampleSet)
	if keepOpen {
		fmt.Fprintf(w, "Inspector: %s (Ctrl-C to stop)\n", srv.PageURL(entry))
		<-ctx.Done()
	} else {
		fmt.Fprintf(w, "Inspector: %s (waiting for the page to be opened, Ctrl-C to skip)\n", srv.PageURL(entry))
		select {
		case <-entry.Viewed():
		case <-ctx.Done():
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Inspector.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	fmt.Fprintln(w, "Inspector stopped")
	return nil
}
