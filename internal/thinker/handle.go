package thinker

import "fmt"

// Handle addresses a thinker record in a List.
//
// The zero Handle is Nil and never refers to a record.
type Handle struct {
	index uint32
	gen   uint32
}

// Nil is the handle that refers to no thinker.
var Nil Handle

// IsNil reports whether h is the nil handle.
func (h Handle) IsNil() bool {
	return h.index == 0
}

// Index returns the arena slot.
func (h Handle) Index() uint32 {
	return h.index
}

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 {
	return h.gen
}

// String formats the handle as "index.generation".
func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d.%d", h.index, h.gen)
}
