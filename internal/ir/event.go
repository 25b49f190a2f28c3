package ir

import "fmt"

// EventKind distinguishes entries in the event log.
type EventKind string

const (
	// EventVisit records one invocation of a thinker's action.
	EventVisit EventKind = "visit"
	// EventSpawn records a thinker being linked into the list.
	EventSpawn EventKind = "spawn"
	// EventDespawn records a thinker being unlinked from the list.
	EventDespawn EventKind = "despawn"
	// EventError records an error that stopped a tick or rejected a call.
	EventError EventKind = "error"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventVisit, EventSpawn, EventDespawn, EventError:
		return true
	}
	return false
}

// Event is one entry in a run's event log.
//
// Seq is assigned by the scheduler clock and is strictly increasing within
// a run. Tick is the tick the event happened in; events recorded between
// ticks carry the number of the last completed tick.
type Event struct {
	RunID  string    `json:"run_id"`
	Seq    int64     `json:"seq"`
	Tick   uint64    `json:"tick"`
	Kind   EventKind `json:"kind"`
	Handle string    `json:"handle,omitempty"`
	Label  string    `json:"label,omitempty"`
	Action string    `json:"action,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// String renders the event as a single log line.
func (e Event) String() string {
	s := fmt.Sprintf("#%d tick=%d %s", e.Seq, e.Tick, e.Kind)
	if e.Label != "" {
		s += " " + e.Label
	}
	if e.Handle != "" {
		s += " [" + e.Handle + "]"
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

// CanonicalMap returns the fields that identify what happened. RunID is
// left out so two runs of the same scenario compare equal.
func (e Event) CanonicalMap() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"tick": e.Tick,
		"kind": string(e.Kind),
	}
	if e.Handle != "" {
		m["handle"] = e.Handle
	}
	if e.Label != "" {
		m["label"] = e.Label
	}
	if e.Action != "" {
		m["action"] = e.Action
	}
	if e.Detail != "" {
		m["detail"] = e.Detail
	}
	return m
}

// Run describes one execution of the tick runner.
type Run struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	EngineVersion string `json:"engine_version"`
	Ticks         uint64 `json:"ticks"`
	Digest        string `json:"digest,omitempty"`
}

// VisitLabels returns the labels of the visit events for the given tick,
// in log order.
func VisitLabels(events []Event, tick uint64) []string {
	var out []string
	for _, e := range events {
		if e.Kind == EventVisit && e.Tick == tick {
			out = append(out, e.Label)
		}
	}
	return out
}
