package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/thinker/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the most recent run
	Tick     uint64 // optional - 0 means every tick
	Kind     string // optional - filter to one event kind
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run    ir.Run     `json:"run"`
	Tick   uint64     `json:"tick,omitempty"`
	Events []ir.Event `json:"events"`
	Stats  TraceStats `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Visits      int `json:"visits"`
	Spawns      int `json:"spawns"`
	Despawns    int `json:"despawns"`
	Errors      int `json:"errors"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the event log of a recorded run",
		Long: `Show the event log of a recorded run.

Lists every visit, spawn, despawn and error in sequence order, optionally
limited to one tick or one kind of event, followed by summary counts.

Examples:
  thinker trace --db ./thinker.db
  thinker trace --db ./thinker.db --run 0192f0c4-... --tick 2
  thinker trace --db ./thinker.db --kind error --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to trace (default: most recent run)")
	cmd.Flags().Uint64Var(&opts.Tick, "tick", 0, "only show events of this tick")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show events of this kind (visit|spawn|despawn|error)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Kind != "" && !ir.EventKind(opts.Kind).Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid event kind %q", opts.Kind))
	}

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

	var events []ir.Event
	if opts.Tick > 0 {
		events, err = st.ReadTick(ctx, run.ID, opts.Tick)
	} else {
		events, err = st.ReadEvents(ctx, run.ID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Run:    run,
		Tick:   opts.Tick,
		Events: filterEvents(events, ir.EventKind(opts.Kind)),
	}
	result.Stats = traceStats(result.Events)

	var b strings.Builder
	writeTraceText(&b, result)
	return formatter.Success(result, strings.TrimRight(b.String(), "\n"))
}

// filterEvents keeps the events of kind, or all events if kind is empty.
// Never returns nil.
func filterEvents(events []ir.Event, kind ir.EventKind) []ir.Event {
	out := make([]ir.Event, 0, len(events))
	for _, e := range events {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func traceStats(events []ir.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	for _, e := range events {
		switch e.Kind {
		case ir.EventVisit:
			stats.Visits++
		case ir.EventSpawn:
			stats.Spawns++
		case ir.EventDespawn:
			stats.Despawns++
		case ir.EventError:
			stats.Errors++
		}
	}
	return stats
}

// writeTraceText renders the trace grouped by tick.
func writeTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for run: %s (%s)\n", result.Run.ID, result.Run.Name)
	fmt.Fprintf(w, "Ticks: %d  Digest: %s\n", result.Run.Ticks, result.Run.Digest)

	if len(result.Events) == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "No events found.")
		return
	}

	tick := ^uint64(0)
	for _, e := range result.Events {
		if e.Tick != tick {
			tick = e.Tick
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Tick %d:\n", tick)
		}
		fmt.Fprintf(w, "  [%d] %-7s %-6s %s", e.Seq, e.Kind, e.Handle, e.Label)
		if e.Action != "" {
			fmt.Fprintf(w, " (%s)", e.Action)
		}
		if e.Detail != "" {
			fmt.Fprintf(w, " - %s", e.Detail)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stats:")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Visits:       %d\n", result.Stats.Visits)
	fmt.Fprintf(w, "  Spawns:       %d\n", result.Stats.Spawns)
	fmt.Fprintf(w, "  Despawns:     %d\n", result.Stats.Despawns)
	fmt.Fprintf(w, "  Errors:       %d\n", result.Stats.Errors)
}
