package action

import (
	"errors"
	"fmt"
)

// ArityError is returned when a Func is invoked with a number of arguments
// other than the arity it was built with.
type ArityError struct {
	Want Kind
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("arity mismatch: %s action called with %d argument(s)", e.Want, e.Got)
}

// ArgTypeError is returned when an argument does not have the type the
// wrapped function declares.
type ArgTypeError struct {
	Index int
	Want  string
	Got   string
}

func (e *ArgTypeError) Error() string {
	return fmt.Sprintf("argument %d: want %s, got %s", e.Index, e.Want, e.Got)
}

// IsArityError reports whether err wraps an *ArityError.
func IsArityError(err error) bool {
	var ae *ArityError
	return errors.As(err, &ae)
}

// IsArgTypeError reports whether err wraps an *ArgTypeError.
func IsArgTypeError(err error) bool {
	var te *ArgTypeError
	return errors.As(err, &te)
}
