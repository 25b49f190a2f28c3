// Package action provides Func, the callable attached to every thinker.
//
// A Func is a closed tagged union over four shapes:
//
//   - Null: no callable; invoking it does nothing
//   - Nullary: func()
//   - Unary: func(T) for any T
//   - Binary: func(T, U) for any T, U
//
// The shape is fixed at construction. Invocation goes through a checked
// path: calling a Func with a different number of arguments than its shape
// returns an *ArityError, and passing an argument of the wrong type returns
// an *ArgTypeError. Neither case ever reaches the wrapped function.
//
// Emptiness is reported by IsNull, which looks only at whether a callable
// is present. A Unary built from a nil func is still tagged Unary but
// IsNull returns true.
package action
