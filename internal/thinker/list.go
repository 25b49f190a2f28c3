package thinker

import (
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/thinker/internal/action"
)

// sentinel is the arena slot that bounds both ends of the list.
const sentinel = 0

type record struct {
	prev, next uint32
	gen        uint32

	live    bool // allocated and not freed
	linked  bool
	freeing bool // Free requested during a walk

	joined uint64 // walk epoch current when the record was inserted
	label  string
	action action.Func
}

// Info is a read-only view of one thinker.
type Info struct {
	Handle Handle
	Label  string
	Kind   action.Kind
	Linked bool
}

// List is an arena of thinker records threaded into a doubly linked list.
type List struct {
	recs []record
	free []uint32

	linked    int
	allocated int

	walking bool
	cursor  uint32
	epoch   uint64
	pending []uint32
}

var errStopWalk = errors.New("stop walk")

// NewList creates an empty list containing only the sentinel.
func NewList() *List {
	return &List{
		recs: make([]record, 1, 64),
	}
}

// Alloc reserves a record for a thinker with the given label and action.
// The record is not linked; call Insert to schedule it.
func (l *List) Alloc(label string, fn action.Func) Handle {
	var idx uint32
	if n := len(l.free); n > 0 {
		idx = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		l.recs = append(l.recs, record{gen: 0})
		idx = uint32(len(l.recs) - 1)
	}

	r := &l.recs[idx]
	if r.gen == 0 {
		r.gen = 1
	}
	r.live = true
	r.label = label
	r.action = fn
	l.allocated++

	return Handle{index: idx, gen: r.gen}
}

// Insert links h at the tail of the list.
func (l *List) Insert(h Handle) error {
	r, err := l.resolve(h)
	if err != nil {
		return err
	}
	if r.linked {
		return fmt.Errorf("insert %s: %w", h, ErrAlreadyLinked)
	}

	tail := l.recs[sentinel].prev
	r.prev = tail
	r.next = sentinel
	r.linked = true
	r.joined = l.epoch
	l.recs[tail].next = h.index
	l.recs[sentinel].prev = h.index
	l.linked++

	return nil
}

// Remove unlinks h from the list. The record stays allocated.
func (l *List) Remove(h Handle) error {
	r, err := l.resolve(h)
	if err != nil {
		return err
	}
	if !r.linked {
		return fmt.Errorf("remove %s: %w", h, ErrNotLinked)
	}

	if l.walking && l.cursor == h.index {
		l.cursor = r.next
	}

	l.recs[r.prev].next = r.next
	l.recs[r.next].prev = r.prev
	r.prev, r.next = sentinel, sentinel
	r.linked = false
	l.linked--

	return nil
}

// Free releases an unlinked record. During a walk the release is deferred
// until the walk ends; the handle is rejected from then on either way.
func (l *List) Free(h Handle) error {
	r, err := l.resolve(h)
	if err != nil {
		return err
	}
	if r.linked {
		return fmt.Errorf("free %s: %w", h, ErrStillLinked)
	}

	if l.walking {
		r.freeing = true
		l.pending = append(l.pending, h.index)
		return nil
	}

	l.release(h.index)
	return nil
}

// ForEach calls fn for every thinker linked before the call, head to tail.
// Iteration stops at the first error fn returns, and that error is returned.
func (l *List) ForEach(fn func(Handle) error) error {
	if l.walking {
		return ErrWalkActive
	}

	l.walking = true
	l.epoch++
	epoch := l.epoch
	defer l.endWalk()

	cur := l.recs[sentinel].next
	for cur != sentinel {
		r := &l.recs[cur]
		// Tail insertion: everything from the first record joined in this
		// walk onwards was inserted during it.
		if r.joined >= epoch {
			break
		}

		l.cursor = r.next
		if err := fn(Handle{index: cur, gen: r.gen}); err != nil {
			return err
		}
		cur = l.cursor
	}

	return nil
}

// All returns the ForEach traversal as an iterator. The iterator panics if
// another traversal of l is in progress.
func (l *List) All() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		err := l.ForEach(func(h Handle) error {
			if !yield(h) {
				return errStopWalk
			}
			return nil
		})
		if errors.Is(err, ErrWalkActive) {
			panic(err)
		}
	}
}

// Walking reports whether a traversal is in progress.
func (l *List) Walking() bool {
	return l.walking
}

// Len returns the number of linked thinkers.
func (l *List) Len() int {
	return l.linked
}

// Allocated returns the number of live records, linked or not.
func (l *List) Allocated() int {
	return l.allocated
}

// Valid reports whether h refers to a live record.
func (l *List) Valid(h Handle) bool {
	_, err := l.resolve(h)
	return err == nil
}

// Linked reports whether h refers to a live, linked record.
func (l *List) Linked(h Handle) bool {
	r, err := l.resolve(h)
	return err == nil && r.linked
}

// Action returns the action attached to h.
func (l *List) Action(h Handle) (action.Func, error) {
	r, err := l.resolve(h)
	if err != nil {
		return action.Func{}, err
	}
	return r.action, nil
}

// SetAction replaces the action attached to h.
func (l *List) SetAction(h Handle, fn action.Func) error {
	r, err := l.resolve(h)
	if err != nil {
		return err
	}
	r.action = fn
	return nil
}

// Label returns the label h was allocated with.
func (l *List) Label(h Handle) (string, error) {
	r, err := l.resolve(h)
	if err != nil {
		return "", err
	}
	return r.label, nil
}

// Info returns a view of h.
func (l *List) Info(h Handle) (Info, error) {
	r, err := l.resolve(h)
	if err != nil {
		return Info{}, err
	}
	return Info{Handle: h, Label: r.label, Kind: r.action.Kind(), Linked: r.linked}, nil
}

// Front returns the first linked thinker, or Nil when the list is empty.
func (l *List) Front() Handle {
	return l.handleAt(l.recs[sentinel].next)
}

// Next returns the thinker linked after h, or Nil at the tail.
func (l *List) Next(h Handle) (Handle, error) {
	r, err := l.resolve(h)
	if err != nil {
		return Nil, err
	}
	if !r.linked {
		return Nil, fmt.Errorf("next %s: %w", h, ErrNotLinked)
	}
	return l.handleAt(r.next), nil
}

// Prev returns the thinker linked before h, or Nil at the head.
func (l *List) Prev(h Handle) (Handle, error) {
	r, err := l.resolve(h)
	if err != nil {
		return Nil, err
	}
	if !r.linked {
		return Nil, fmt.Errorf("prev %s: %w", h, ErrNotLinked)
	}
	return l.handleAt(r.prev), nil
}

// Handles returns the linked thinkers in traversal order without running a
// traversal, so it is safe to call from inside ForEach.
func (l *List) Handles() []Handle {
	out := make([]Handle, 0, l.linked)
	for cur := l.recs[sentinel].next; cur != sentinel; cur = l.recs[cur].next {
		out = append(out, l.handleAt(cur))
	}
	return out
}

// Snapshot returns Info for every linked thinker in traversal order.
func (l *List) Snapshot() []Info {
	out := make([]Info, 0, l.linked)
	for cur := l.recs[sentinel].next; cur != sentinel; cur = l.recs[cur].next {
		r := &l.recs[cur]
		out = append(out, Info{
			Handle: Handle{index: cur, gen: r.gen},
			Label:  r.label,
			Kind:   r.action.Kind(),
			Linked: true,
		})
	}
	return out
}

// Clear unlinks and frees every record.
func (l *List) Clear() error {
	if l.walking {
		return ErrWalkActive
	}
	for i := 1; i < len(l.recs); i++ {
		r := &l.recs[i]
		if !r.live {
			continue
		}
		if r.linked {
			l.recs[r.prev].next = r.next
			l.recs[r.next].prev = r.prev
			r.linked = false
			l.linked--
		}
		l.release(uint32(i))
	}
	return nil
}

// Validate checks the list structure: every linked record is reachable from
// the sentinel, neighbours point back at each other, and the count matches.
func (l *List) Validate() error {
	seen := 0
	prev := uint32(sentinel)
	for cur := l.recs[sentinel].next; cur != sentinel; cur = l.recs[cur].next {
		if int(cur) >= len(l.recs) {
			return fmt.Errorf("slot %d: next points outside arena", prev)
		}
		r := &l.recs[cur]
		if !r.live || !r.linked {
			return fmt.Errorf("slot %d: reachable but not linked", cur)
		}
		if r.prev != prev {
			return fmt.Errorf("slot %d: prev is %d, want %d", cur, r.prev, prev)
		}
		seen++
		if seen > l.linked {
			return fmt.Errorf("list longer than linked count %d", l.linked)
		}
		prev = cur
	}
	if l.recs[sentinel].prev != prev {
		return fmt.Errorf("sentinel prev is %d, want %d", l.recs[sentinel].prev, prev)
	}
	if seen != l.linked {
		return fmt.Errorf("reached %d thinkers, linked count is %d", seen, l.linked)
	}
	return nil
}

func (l *List) resolve(h Handle) (*record, error) {
	if h.index == sentinel || int(h.index) >= len(l.recs) {
		return nil, fmt.Errorf("%s: %w", h, ErrStaleHandle)
	}
	r := &l.recs[h.index]
	if !r.live || r.freeing || r.gen != h.gen {
		return nil, fmt.Errorf("%s: %w", h, ErrStaleHandle)
	}
	return r, nil
}

func (l *List) handleAt(idx uint32) Handle {
	if idx == sentinel {
		return Nil
	}
	return Handle{index: idx, gen: l.recs[idx].gen}
}

func (l *List) release(idx uint32) {
	gen := l.recs[idx].gen + 1
	if gen == 0 {
		gen = 1
	}
	l.recs[idx] = record{gen: gen}
	l.free = append(l.free, idx)
	l.allocated--
}

func (l *List) endWalk() {
	l.walking = false
	l.cursor = sentinel
	for _, idx := range l.pending {
		l.release(idx)
	}
	l.pending = l.pending[:0]
}
