package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tracesim/internal/calibration"
	"github.com/nvandessel/tracesim/internal/config"
	"github.com/nvandessel/tracesim/internal/constants"
	"github.com/nvandessel/tracesim/internal/engine"
	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/logging"
	"github.com/nvandessel/tracesim/internal/models"
	"github.com/nvandessel/tracesim/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the contact-tracing scenario sweep for a region",
		Long: `Load the calibrated parameters of a region, build one scenario per
configured tracing policy and run every scenario for the configured number
of stochastic repeats.

The first interrupt stops scheduling new runs and lets in-flight runs finish.
A second interrupt kills running simulator processes.

Examples:
  tracesim run --country CH --area BE
  tracesim run --country CH --area TI --cpu-count 8 --multi-beta
  tracesim run --country CH --area BE --dry-run --repeats 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			region, err := regionFlags(cmd)
			if err != nil {
				return err
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			logger := newLogger(cmd, cfg)
			events := logging.NewEventLogger(store.LocalPath(root), constants.EventLogFile, cfg.Logging.Level)
			defer events.Close()

			// Soft cancellation stops scheduling; hard cancellation kills
			// running simulator processes.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			hardCtx, hardCancel := context.WithCancel(context.WithoutCancel(ctx))
			defer hardCancel()
			stop := handleInterrupts(cancel, hardCancel, cmd.ErrOrStderr())
			defer stop()

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			inner, err := newEngine(cfg, dryRun)
			if err != nil {
				return err
			}
			eng := experiment.EngineFunc(func(_ context.Context, req experiment.Request) (*models.Trajectory, error) {
				return inner.Simulate(hardCtx, req)
			})

			out, err := runSweep(ctx, cfg, region, s, eng, events, logger)
			if out != nil {
				if printErr := printRun(cmd.OutOrStdout(), jsonOut, out); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}

	addRegionFlags(cmd)
	cmd.Flags().Int("cpu-count", -1, "Maximum concurrent runs (0 uses all CPUs; default from config)")
	cmd.Flags().Int("repeats", 0, "Stochastic repeats per scenario (default from config)")
	cmd.Flags().Int64("seed", 0, "Global seed (default from config)")
	cmd.Flags().Bool("fail-fast", false, "Cancel queued runs after the first failure")
	cmd.Flags().Bool("multi-beta", false, "Use the multi-objective calibration history")
	cmd.Flags().Bool("dry-run", false, "Echo each run's configuration instead of invoking the simulator")
	cmd.Flags().String("engine-cmd", "", "Simulator executable (overrides engine.command)")

	return cmd
}

// applyRunFlags overlays explicitly set run flags on the configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.TracesimConfig) error {
	flags := cmd.Flags()
	if flags.Changed("cpu-count") {
		n, _ := flags.GetInt("cpu-count")
		if n < 0 {
			return models.NewConfigurationError("cpu-count", "must be non-negative, got %d", n)
		}
		cfg.Experiment.Parallelism = n
	}
	if flags.Changed("repeats") {
		cfg.Experiment.Repeats, _ = flags.GetInt("repeats")
	}
	if flags.Changed("seed") {
		cfg.Experiment.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("fail-fast") {
		cfg.Experiment.FailFast, _ = flags.GetBool("fail-fast")
	}
	if flags.Changed("multi-beta") {
		cfg.Calibration.MultiObjective, _ = flags.GetBool("multi-beta")
	}
	if flags.Changed("engine-cmd") {
		cfg.Engine.Command, _ = flags.GetString("engine-cmd")
	}
	return nil
}

// handleInterrupts cancels soft on the first signal and hard on the second.
// The returned function unregisters the handler.
func handleInterrupts(soft, hard context.CancelFunc, w io.Writer) func() {
	sigChan := make(chan os.Signal, 2)
	notifySignals(sigChan)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(w, "interrupt: waiting for running simulations (interrupt again to kill them)")
			soft()
		case <-done:
			return
		}
		select {
		case <-sigChan:
			fmt.Fprintln(w, "interrupt: killing running simulations")
			hard()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// newEngine selects the simulation engine.
func newEngine(cfg *config.TracesimConfig, dryRun bool) (experiment.Engine, error) {
	if dryRun {
		return engine.DryRunEngine{}, nil
	}
	if cfg.Engine.Command == "" {
		return nil, models.NewConfigurationError("engine.command", "no simulator configured (set engine.command, pass --engine-cmd, or use --dry-run)")
	}
	return engine.NewProcessEngine(engine.ProcessConfig{
		Command: cfg.Engine.Command,
		Args:    cfg.Engine.Args,
		Timeout: cfg.Engine.Timeout,
	})
}

// runOutput is what "tracesim run" reports.
type runOutput struct {
	ExperimentID string             `json:"experiment_id"`
	Name         string             `json:"name"`
	State        string             `json:"state"`
	Scenarios    []scenarioInfo     `json:"scenarios"`
	Summary      experiment.Summary `json:"summary"`
	Error        string             `json:"error,omitempty"`
}

// runSweep loads the baseline, builds every scenario and runs the sweep.
// Errors before the first run return a nil output.
func runSweep(ctx context.Context, cfg *config.TracesimConfig, region models.Region, s store.Store, eng experiment.Engine, events *logging.EventLogger, logger *slog.Logger) (*runOutput, error) {
	loader := calibration.NewLoader(s, region, cfg.Calibration.MultiObjective, cfg.Cutoff(), logger)
	baseline, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	expCfg, err := cfg.ExperimentConfig(region)
	if err != nil {
		return nil, err
	}
	orch, err := experiment.New(expCfg, baseline, eng,
		experiment.WithResultSink(s),
		experiment.WithEventLogger(events),
		experiment.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	builder := cfg.Builder()
	for _, p := range cfg.Policies {
		sc, err := builder.Make(p, expCfg.Horizon.End, baseline)
		if err != nil {
			return nil, err
		}
		if err := orch.Add(sc); err != nil {
			return nil, err
		}
	}

	results, runErr := orch.RunAll(ctx)
	if results == nil {
		return nil, runErr
	}

	out := &runOutput{
		ExperimentID: orch.ID(),
		Name:         expCfg.Name,
		State:        orch.State().String(),
		Scenarios:    describeScenarios(orch.Scenarios()),
		Summary:      results.Summary(),
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	return out, runErr
}

func printRun(w io.Writer, jsonOut bool, out *runOutput) error {
	if jsonOut {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "Experiment %s (%s): %s\n", out.Name, out.ExperimentID, out.State)
	fmt.Fprintf(w, "  scenarios: %d\n", len(out.Scenarios))
	for _, sc := range out.Scenarios {
		fmt.Fprintf(w, "    %s\n", sc.ID)
	}
	fmt.Fprintf(w, "  runs:      %d total, %d succeeded, %d failed, %d cancelled\n",
		out.Summary.Total, out.Summary.Succeeded, out.Summary.Failed, out.Summary.Cancelled)
	for _, k := range out.Summary.FailedKeys {
		fmt.Fprintf(w, "  failed:    %s\n", k)
	}
	return nil
}
