package view

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/roach88/thinker/internal/action"
	"github.com/roach88/thinker/internal/engine"
	"github.com/roach88/thinker/internal/ir"
	"github.com/roach88/thinker/internal/thinker"
)

// Canvas is the part of tcell.Screen the view draws on.
type Canvas interface {
	SetContent(x, y int, mainc rune, combc []rune, style tcell.Style)
	Size() (width, height int)
	Clear()
	Show()
}

// Frame is the scheduler state after a tick.
type Frame struct {
	RunID    string
	Tick     uint64
	State    string
	Thinkers []thinker.Info
	Visited  []string
	Err      string
}

// FrameOf captures the scheduler after a tick. visited lists the labels
// visited in that tick and err is the tick's error, if any.
func FrameOf(s *engine.Scheduler, visited []string, err error) Frame {
	f := Frame{
		RunID:    s.RunID(),
		Tick:     s.TickCount(),
		State:    s.State().String(),
		Thinkers: s.Snapshot(),
		Visited:  visited,
	}
	if err != nil {
		f.Err = err.Error()
	}
	return f
}

var (
	styleHeader  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleColumns = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleRow     = tcell.StyleDefault
	styleVisited = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleDormant = tcell.StyleDefault.Foreground(tcell.ColorGray).Dim(true)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

// Row layout.
const (
	colIndex  = 0
	colHandle = 5
	colLabel  = 14
	colAction = 34
	colMark   = 44

	headerRows = 2
)

// View renders frames.
type View struct {
	canvas Canvas
}

// New creates a view drawing on canvas.
func New(canvas Canvas) *View {
	return &View{canvas: canvas}
}

// Draw clears the canvas and renders f. Thinkers that do not fit above the
// status line are summarised as "+N more".
func (v *View) Draw(f Frame) {
	v.canvas.Clear()
	width, height := v.canvas.Size()

	header := fmt.Sprintf("run %s  tick %d  %s  thinkers %d", f.RunID, f.Tick, f.State, len(f.Thinkers))
	v.text(0, 0, width, header, styleHeader)

	v.text(colIndex, 1, width, "#", styleColumns)
	v.text(colHandle, 1, width, "HANDLE", styleColumns)
	v.text(colLabel, 1, width, "LABEL", styleColumns)
	v.text(colAction, 1, width, "ACTION", styleColumns)
	v.text(colMark, 1, width, "VISITED", styleColumns)

	visited := make(map[string]bool, len(f.Visited))
	for _, label := range f.Visited {
		visited[label] = true
	}

	rows := height - headerRows - 1
	for i, info := range f.Thinkers {
		y := headerRows + i
		if i >= rows {
			v.text(0, y, width, fmt.Sprintf("+%d more", len(f.Thinkers)-i), styleColumns)
			break
		}

		style := styleRow
		if info.Kind == action.KindNull {
			style = styleDormant
		}
		v.text(colIndex, y, width, fmt.Sprintf("%d", i+1), style)
		v.text(colHandle, y, width, info.Handle.String(), style)
		v.text(colLabel, y, width, info.Label, style)
		v.text(colAction, y, width, info.Kind.String(), style)
		if visited[info.Label] {
			v.text(colMark, y, width, "*", styleVisited)
		}
	}

	if f.Err != "" && height > 0 {
		v.text(0, height-1, width, f.Err, styleError)
	}

	v.canvas.Show()
}

// text writes s at (x, y), clipped to width.
func (v *View) text(x, y, width int, s string, style tcell.Style) {
	for _, r := range s {
		if x >= width {
			return
		}
		v.canvas.SetContent(x, y, r, nil, style)
		x++
	}
}

// Feed is an engine.Recorder that keeps the event log for drawing.
//
// It is safe for concurrent use.
type Feed struct {
	mu     sync.Mutex
	events []ir.Event
}

var _ engine.Recorder = (*Feed)(nil)

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

// RecordEvents implements engine.Recorder.
func (f *Feed) RecordEvents(_ context.Context, events []ir.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

// Visits returns the labels visited in tick, in order.
func (f *Feed) Visits(tick uint64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ir.VisitLabels(f.events, tick)
}

// Len returns the number of events recorded.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
