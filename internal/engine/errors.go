package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/thinker/internal/action"
	"github.com/roach88/thinker/internal/thinker"
)

// SchedulerError reports a misuse of the scheduler or of a thinker.
//
// Every SchedulerError is a programming error rather than a transient
// failure: nothing is retried. Raised during a tick, it aborts that tick.
type SchedulerError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Tick is the tick the error happened in (0 before the first tick).
	Tick uint64

	// Handle identifies the affected thinker, if any.
	Handle thinker.Handle

	// Label is the affected thinker's label, if known.
	Label string

	// Err is the underlying error.
	Err error
}

// ErrorCode categorizes scheduler errors.
type ErrorCode string

const (
	// ErrCodeArityMismatch indicates an action was built with an arity the
	// call convention does not match.
	ErrCodeArityMismatch ErrorCode = "ARITY_MISMATCH"

	// ErrCodeArgTypeMismatch indicates an action's parameter types do not
	// match the call convention.
	ErrCodeArgTypeMismatch ErrorCode = "ARG_TYPE_MISMATCH"

	// ErrCodeDoubleRemoval indicates removal of a thinker that is not linked.
	ErrCodeDoubleRemoval ErrorCode = "DOUBLE_REMOVAL"

	// ErrCodeNestedTick indicates Tick was called while a tick was running.
	ErrCodeNestedTick ErrorCode = "NESTED_TICK"

	// ErrCodeStaleHandle indicates a handle that no longer names a thinker.
	ErrCodeStaleHandle ErrorCode = "STALE_HANDLE"

	// ErrCodeAlreadyLinked indicates insertion of a linked thinker.
	ErrCodeAlreadyLinked ErrorCode = "ALREADY_LINKED"

	// ErrCodeStillLinked indicates Free on a linked thinker.
	ErrCodeStillLinked ErrorCode = "STILL_LINKED"

	// ErrCodeWrongGoroutine indicates a call from a goroutine other than the
	// one that created the scheduler.
	ErrCodeWrongGoroutine ErrorCode = "WRONG_GOROUTINE"

	// ErrCodeTickInProgress indicates Close was called during a tick.
	ErrCodeTickInProgress ErrorCode = "TICK_IN_PROGRESS"

	// ErrCodeClosed indicates use of a closed scheduler.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	switch {
	case e.Label != "":
		return fmt.Sprintf("%s: %s (tick=%d, thinker=%s %s)", e.Code, e.Message, e.Tick, e.Label, e.Handle)
	case !e.Handle.IsNil():
		return fmt.Sprintf("%s: %s (tick=%d, thinker=%s)", e.Code, e.Message, e.Tick, e.Handle)
	default:
		return fmt.Sprintf("%s: %s (tick=%d)", e.Code, e.Message, e.Tick)
	}
}

// Unwrap returns the underlying error.
func (e *SchedulerError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the SchedulerError wrapped by err, or "".
func CodeOf(err error) ErrorCode {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsArityError returns true if err is an arity or argument type mismatch.
func IsArityError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeArityMismatch || code == ErrCodeArgTypeMismatch
}

// IsDoubleRemoval returns true if err reports removal of an unlinked thinker.
func IsDoubleRemoval(err error) bool {
	return CodeOf(err) == ErrCodeDoubleRemoval
}

// IsNestedTick returns true if err reports a tick started inside a tick.
func IsNestedTick(err error) bool {
	return CodeOf(err) == ErrCodeNestedTick
}

// listError maps a thinker list error onto a SchedulerError.
func listError(op string, err error, tick uint64, h thinker.Handle) *SchedulerError {
	code := ErrCodeStaleHandle
	switch {
	case errors.Is(err, thinker.ErrNotLinked):
		code = ErrCodeDoubleRemoval
	case errors.Is(err, thinker.ErrAlreadyLinked):
		code = ErrCodeAlreadyLinked
	case errors.Is(err, thinker.ErrStillLinked):
		code = ErrCodeStillLinked
	}
	return &SchedulerError{
		Code:    code,
		Message: op + " failed",
		Tick:    tick,
		Handle:  h,
		Err:     err,
	}
}

// callError maps a checked-call failure onto a SchedulerError.
func callError(err error, tick uint64, h thinker.Handle, label string) *SchedulerError {
	code := ErrCodeArityMismatch
	if action.IsArgTypeError(err) {
		code = ErrCodeArgTypeMismatch
	}
	return &SchedulerError{
		Code:    code,
		Message: "action does not match the call convention",
		Tick:    tick,
		Handle:  h,
		Label:   label,
		Err:     err,
	}
}
