package thinker

import "errors"

var (
	// ErrStaleHandle is returned for nil handles, handles outside the arena,
	// and handles whose generation no longer matches the slot.
	ErrStaleHandle = errors.New("stale thinker handle")

	// ErrAlreadyLinked is returned when inserting a thinker that is linked.
	ErrAlreadyLinked = errors.New("thinker already linked")

	// ErrNotLinked is returned when removing a thinker that is not linked.
	// Removing twice is reported here rather than corrupting the list.
	ErrNotLinked = errors.New("thinker not linked")

	// ErrStillLinked is returned when freeing a thinker that is linked.
	ErrStillLinked = errors.New("thinker still linked")

	// ErrWalkActive is returned when starting a traversal, or clearing the
	// list, while a traversal is in progress.
	ErrWalkActive = errors.New("thinker traversal already in progress")
)
