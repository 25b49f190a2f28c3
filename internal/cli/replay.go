package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/thinker/internal/engine"
	"github.com/roach88/thinker/internal/ir"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the most recent run
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	RunID          string `json:"run_id"`
	Scenario       string `json:"scenario"`
	Ticks          uint64 `json:"ticks"`
	Events         int    `json:"events"`
	StoredDigest   string `json:"stored_digest"`
	LogDigest      string `json:"log_digest"`
	ReplayDigest   string `json:"replay_digest"`
	LogIntact      bool   `json:"log_intact"`
	Deterministic  bool   `json:"deterministic"`
	DivergedAtSeq  int64  `json:"diverged_at_seq,omitempty"`
	DivergedDetail string `json:"diverged_detail,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario-file>",
		Short: "Re-run a recorded scenario and verify determinism",
		Long: `Re-run a recorded scenario and verify determinism.

The recorded event log is re-hashed and checked against the digest stored
when the run finished. The scenario is then run again in memory for the
same number of ticks, and its trace digest is compared with the recorded
one. On a mismatch the first diverging event is reported.

Exit codes:
  0 - Log intact and replay deterministic
  1 - Digest mismatch (log altered or replay diverged)
  2 - Command error (database not found, run not found, etc.)

Examples:
  thinker replay --db ./thinker.db scenarios/snapshot_next.yaml
  thinker replay --db ./thinker.db --run 0192f0c4-... scenarios/spawn.yaml
  thinker replay --db ./thinker.db --format json scenarios/spawn.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to replay (default: most recent run)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := recordedRun(ctx, st, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeRunNotFound, err.Error(), nil)
		return err
	}

	scenario, err := loadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	if scenario.Name != run.Name {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s recorded scenario %q, not %q", run.ID, run.Name, scenario.Name))
	}

	verification, err := st.VerifyRun(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify run", err)
	}
	formatter.VerboseLog("Verified %d stored events of run %s", verification.Events, run.ID)

	replayed, err := execute(ctx, scenario, nil, run.Ticks, engine.WithRunID(run.ID))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result := ReplayResult{
		RunID:         run.ID,
		Scenario:      run.Name,
		Ticks:         run.Ticks,
		Events:        verification.Events,
		StoredDigest:  run.Digest,
		LogDigest:     verification.Computed,
		ReplayDigest:  replayed.Digest,
		LogIntact:     verification.OK(),
		Deterministic: replayed.Digest == run.Digest,
	}

	if !result.Deterministic {
		stored, err := st.ReadEvents(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
		if seq, detail, ok := firstDivergence(stored, replayed.Events); ok {
			result.DivergedAtSeq = seq
			result.DivergedDetail = detail
		}
	}

	return outputReplayResult(formatter, result)
}

// firstDivergence finds the first position where the two logs differ,
// ignoring run IDs. It returns the seq of that position and a description.
func firstDivergence(stored, replayed []ir.Event) (int64, string, bool) {
	n := min(len(stored), len(replayed))
	for i := 0; i < n; i++ {
		a, b := stored[i], replayed[i]
		a.RunID, b.RunID = "", ""
		if a != b {
			return a.Seq, fmt.Sprintf("recorded %q, replayed %q", a.String(), b.String()), true
		}
	}

	switch {
	case len(stored) > n:
		return stored[n].Seq, fmt.Sprintf("recorded %q, replay ended", stored[n].String()), true
	case len(replayed) > n:
		return replayed[n].Seq, fmt.Sprintf("recording ended, replayed %q", replayed[n].String()), true
	}
	return 0, "", false
}

// outputReplayResult reports the replay and maps mismatches to exit code 1.
func outputReplayResult(formatter *OutputFormatter, result ReplayResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Replay of run %s (%s)\n", result.RunID, result.Scenario)
	fmt.Fprintf(&b, "  ticks:  %d\n", result.Ticks)
	fmt.Fprintf(&b, "  events: %d\n", result.Events)
	fmt.Fprintf(&b, "  log:    %s\n", status(result.LogIntact, "intact", "digest mismatch"))
	fmt.Fprintf(&b, "  replay: %s", status(result.Deterministic, "deterministic", "diverged"))
	if result.DivergedDetail != "" {
		fmt.Fprintf(&b, "\n  first divergence at seq %d: %s", result.DivergedAtSeq, result.DivergedDetail)
	}

	if result.LogIntact && result.Deterministic {
		return formatter.Success(result, b.String())
	}

	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeMismatch, "replay digest mismatch", result)
	} else {
		fmt.Fprintln(formatter.Writer, b.String())
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: run %s does not replay", ErrCodeMismatch, result.RunID))
}

func status(ok bool, yes, no string) string {
	if ok {
		return "✓ " + yes
	}
	return "✗ " + no
}
