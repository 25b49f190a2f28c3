package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/thinker/internal/harness"
	"github.com/roach88/thinker/internal/view"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
	Hold     bool // keep the last frame on screen until a key is pressed

	// NewScreen allows overriding the terminal (for testing).
	// If nil, defaults to tcell.NewScreen.
	NewScreen func() (tcell.Screen, error)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <scenario-file>",
		Short: "Watch a scenario tick by tick in the terminal",
		Long: `Run a scenario in memory and draw the thinker list after every tick.

Visited thinkers are marked, dormant ones are dimmed, and the error of an
aborted tick is shown on the bottom line. Press q or Esc to stop.

Examples:
  thinker watch scenarios/snapshot_next.yaml
  thinker watch --interval 1s --hold scenarios/spawn.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 500*time.Millisecond, "time between ticks")
	cmd.Flags().BoolVar(&opts.Hold, "hold", false, "wait for a key press after the last tick")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	scenario, err := loadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	newScreen := opts.NewScreen
	if newScreen == nil {
		newScreen = tcell.NewScreen
	}
	screen, err := newScreen()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open terminal", err)
	}
	if err := screen.Init(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialise terminal", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	result, err := watchScenario(ctx, screen, scenario, opts)
	screen.Fini()
	if err != nil {
		return WrapExitError(ExitCommandError, "watch failed", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	text := fmt.Sprintf("Watched %s: %d tick(s), digest %s", scenario.Name, result.Ticks, result.Digest)
	return formatter.Success(ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}, text)
}

// watchScenario runs the scenario, drawing a frame after every tick.
// It stops early when ctx is cancelled or a quit key is pressed.
func watchScenario(ctx context.Context, screen tcell.Screen, scenario *harness.Scenario, opts *WatchOptions) (*harness.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go quitOnKey(screen, cancel)

	feed := view.NewFeed()
	runner, err := harness.NewRunner(scenario, feed)
	if err != nil {
		return nil, err
	}
	sched := runner.Scheduler()
	v := view.New(screen)
	v.Draw(view.FrameOf(sched, nil, nil))

	var tickC <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

loop:
	for !runner.Done() {
		if tickC != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-tickC:
			}
		} else if ctx.Err() != nil {
			break
		}

		tickErr := runner.Tick(ctx)
		v.Draw(view.FrameOf(sched, feed.Visits(sched.TickCount()), tickErr))
	}

	if opts.Hold && runner.Done() {
		<-ctx.Done()
	}

	return runner.Finish(context.WithoutCancel(ctx))
}

// quitOnKey cancels when q, Esc or Ctrl-C is pressed, and redraws on
// resize. It returns once the screen is finalised.
func quitOnKey(screen tcell.Screen, cancel context.CancelFunc) {
	for {
		switch ev := screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
				cancel()
				return
			}
		}
	}
}
