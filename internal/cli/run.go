package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/roach88/thinker/internal/config"
	"github.com/roach88/thinker/internal/engine"
	"github.com/roach88/thinker/internal/harness"
	"github.com/roach88/thinker/internal/ir"
	"github.com/roach88/thinker/internal/observability"
	"github.com/roach88/thinker/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Interval    time.Duration
	MaxTicks    uint64
	MetricsAddr string
	Trace       bool

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator

	// Registerer receives the scheduler metrics. If nil, a fresh registry
	// is used for each run.
	Registerer prometheus.Registerer
}

// RunSummary is the outcome of a recorded run.
type RunSummary struct {
	RunID      string              `json:"run_id"`
	Scenario   string              `json:"scenario"`
	Ticks      uint64              `json:"ticks"`
	Events     int                 `json:"events"`
	Digest     string              `json:"digest"`
	Alive      []string            `json:"alive"`
	Pass       bool                `json:"pass"`
	TickErrors []harness.TickError `json:"tick_errors,omitempty"`
	Errors     []string            `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a scenario and record it",
		Long: `Run a scenario on the tick scheduler and record its event log.

The scheduler spawns the scenario's thinkers, then ticks at the configured
interval until the tick count is reached or a tick is aborted. Every visit,
spawn, despawn and error is written to the SQLite database together with
the run's trace digest.

Flags override the --config file, which overrides THINKER_* variables'
defaults.

Exit codes:
  0 - Run completed and every assertion held
  1 - A tick was aborted or an assertion failed
  2 - Command error (invalid paths, database error, etc.)

Example:
  thinker run --db ./thinker.db scenarios/snapshot_next.yaml
  thinker run --interval 100ms --metrics-addr :9100 scenarios/spawn.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between ticks (0 runs ticks back to back)")
	cmd.Flags().Uint64Var(&opts.MaxTicks, "max-ticks", 0, "stop after this many ticks (default: the scenario's ticks)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "export OpenTelemetry tick spans")

	return cmd
}

// resolveConfig applies the command's flags over the loaded configuration.
func (opts *RunOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("interval") {
		cfg.Interval = opts.Interval
	}
	if flags.Changed("max-ticks") {
		cfg.MaxTicks = opts.MaxTicks
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if flags.Changed("trace") {
		cfg.Tracing.Enabled = opts.Trace
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return err
	}

	scenario, err := loadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	slog.Info("opening database", "path", cfg.Database)
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialise tracing", err)
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown)

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	collector, err := observability.NewTickCollector(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.MetricsAddr, collector); err != nil {
				slog.Error("metrics endpoint failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	runID := gen.Generate()

	if err := st.WriteRun(context.WithoutCancel(ctx), ir.Run{ID: runID, Name: scenario.Name, EngineVersion: ir.EngineVersion}); err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", err)
	}

	ticks := cfg.MaxTicks
	if ticks == 0 {
		ticks = uint64(scenario.Ticks)
	}

	slog.Info("run starting", "run_id", runID, "scenario", scenario.Name, "ticks", ticks, "interval", cfg.Interval)
	result, err := execute(ctx, scenario, st, ticks,
		engine.WithRunID(runID),
		engine.WithInterval(cfg.Interval),
		engine.WithMetrics(collector),
		engine.WithTracer(otel.Tracer(engine.TracerName)),
		engine.WithLogger(slog.Default()),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	if err := st.FinishRun(context.WithoutCancel(ctx), runID, result.Ticks, result.Digest); err != nil {
		return WrapExitError(ExitCommandError, "failed to finish run", err)
	}
	slog.Info("run finished", "run_id", runID, "ticks", result.Ticks, "digest", result.Digest, "pass", result.Pass)

	summary := RunSummary{
		RunID:      runID,
		Scenario:   scenario.Name,
		Ticks:      result.Ticks,
		Events:     len(result.Events),
		Digest:     result.Digest,
		Alive:      result.Alive,
		Pass:       result.Pass,
		TickErrors: result.TickErrors,
		Errors:     result.Errors,
	}
	return outputRunSummary(formatter, summary)
}

// execute runs scenario for ticks ticks on the scheduler's run loop and
// returns the closed result. Zero ticks closes the scheduler untouched.
// The loop stops at the first aborted tick, which is recorded in the
// result as a failure.
func execute(ctx context.Context, scenario *harness.Scenario, rec engine.Recorder, ticks uint64, opts ...engine.Option) (*harness.Result, error) {
	opts = append(opts, engine.WithMaxTicks(ticks))
	runner, err := harness.NewRunner(scenario, rec, opts...)
	if err != nil {
		return nil, err
	}

	var runErr error
	if ticks > 0 {
		runErr = runner.Scheduler().Run(ctx)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && engine.CodeOf(runErr) == "" {
		return nil, runErr
	}

	result, err := runner.Finish(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	if code := engine.CodeOf(runErr); code != "" {
		result.TickErrors = append(result.TickErrors, harness.TickError{
			Tick:    result.Ticks,
			Code:    string(code),
			Message: runErr.Error(),
		})
		result.AddError(fmt.Sprintf("tick %d aborted: %s", result.Ticks, runErr))
	}
	return result, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// outputRunSummary reports the run and maps failures to exit code 1.
func outputRunSummary(formatter *OutputFormatter, summary RunSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", summary.RunID, summary.Scenario)
	fmt.Fprintf(&b, "  ticks:  %d\n", summary.Ticks)
	fmt.Fprintf(&b, "  events: %d\n", summary.Events)
	fmt.Fprintf(&b, "  digest: %s\n", summary.Digest)
	fmt.Fprintf(&b, "  alive:  [%s]", strings.Join(summary.Alive, ", "))
	for _, e := range summary.Errors {
		fmt.Fprintf(&b, "\n  ✗ %s", e)
	}

	if summary.Pass {
		return formatter.Success(summary, b.String())
	}

	code := ErrCodeGeneric
	if len(summary.TickErrors) > 0 {
		code = ErrCodeTickAborted
	}
	if formatter.Format == "json" {
		_ = formatter.Error(code, fmt.Sprintf("run %s failed", summary.RunID), summary)
	} else {
		fmt.Fprintln(formatter.Writer, b.String())
	}
	return NewExitError(ExitFailure, fmt.Sprintf("run %s failed", summary.RunID))
}

// recordedRun loads a run by ID, or the most recent run when id is empty.
func recordedRun(ctx context.Context, st *store.Store, id string) (ir.Run, error) {
	var (
		run ir.Run
		err error
	)
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.GetRun(ctx, id)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		if id == "" {
			return ir.Run{}, WrapExitError(ExitCommandError, ErrCodeRunNotFound+": no runs recorded", err)
		}
		return ir.Run{}, WrapExitError(ExitCommandError, fmt.Sprintf("%s: run %s not found", ErrCodeRunNotFound, id), err)
	}
	if err != nil {
		return ir.Run{}, WrapExitError(ExitCommandError, ErrCodeStore+": failed to read run", err)
	}
	return run, nil
}
