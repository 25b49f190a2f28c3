package action

import (
	"fmt"
	"reflect"
)

// Kind identifies the shape of a Func.
type Kind uint8

const (
	// KindNull is the zero value: no callable.
	KindNull Kind = iota
	// KindNullary wraps func().
	KindNullary
	// KindUnary wraps func(T).
	KindUnary
	// KindBinary wraps func(T, U).
	KindBinary
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNullary:
		return "nullary"
	case KindUnary:
		return "unary"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Arity returns the number of arguments a callable of this kind takes.
// KindNull reports 0.
func (k Kind) Arity() int {
	switch k {
	case KindUnary:
		return 1
	case KindBinary:
		return 2
	default:
		return 0
	}
}

// Func is a tagged callable of fixed arity.
//
// The zero value is Null. Func is a small value type and is meant to be
// copied; only the field matching kind is ever set.
type Func struct {
	kind Kind
	f0   func()
	f1   func(any) error
	f2   func(any, any) error
}

// Null returns the empty Func.
func Null() Func {
	return Func{}
}

// Nullary wraps a function taking no arguments.
func Nullary(fn func()) Func {
	return Func{kind: KindNullary, f0: fn}
}

// Unary wraps a function taking one argument of type T.
//
// The argument passed to Call1 must be assignable to T. A nil argument is
// accepted and delivered as the zero value of T.
func Unary[T any](fn func(T)) Func {
	f := Func{kind: KindUnary}
	if fn == nil {
		return f
	}
	f.f1 = func(a any) error {
		ta, err := argAs[T](0, a)
		if err != nil {
			return err
		}
		fn(ta)
		return nil
	}
	return f
}

// Binary wraps a function taking two arguments of types T and U.
//
// The arguments passed to Call2 must be assignable to T and U. A nil
// argument is accepted and delivered as the zero value of its type.
func Binary[T, U any](fn func(T, U)) Func {
	f := Func{kind: KindBinary}
	if fn == nil {
		return f
	}
	f.f2 = func(a, b any) error {
		ta, err := argAs[T](0, a)
		if err != nil {
			return err
		}
		ub, err := argAs[U](1, b)
		if err != nil {
			return err
		}
		fn(ta, ub)
		return nil
	}
	return f
}

// Kind returns the shape fixed at construction.
func (f Func) Kind() Kind {
	return f.kind
}

// IsNull reports whether f holds no callable, regardless of its kind.
func (f Func) IsNull() bool {
	return f.f0 == nil && f.f1 == nil && f.f2 == nil
}

// Call invokes a nullary Func.
func (f Func) Call() error {
	if f.IsNull() {
		return nil
	}
	if f.kind != KindNullary {
		return &ArityError{Want: f.kind, Got: 0}
	}
	f.f0()
	return nil
}

// Call1 invokes a unary Func with a.
func (f Func) Call1(a any) error {
	if f.IsNull() {
		return nil
	}
	if f.kind != KindUnary {
		return &ArityError{Want: f.kind, Got: 1}
	}
	return f.f1(a)
}

// Call2 invokes a binary Func with a and b.
func (f Func) Call2(a, b any) error {
	if f.IsNull() {
		return nil
	}
	if f.kind != KindBinary {
		return &ArityError{Want: f.kind, Got: 2}
	}
	return f.f2(a, b)
}

// Invoke dispatches on len(args). More than two arguments is always an
// arity mismatch.
func (f Func) Invoke(args ...any) error {
	switch len(args) {
	case 0:
		return f.Call()
	case 1:
		return f.Call1(args[0])
	case 2:
		return f.Call2(args[0], args[1])
	default:
		if f.IsNull() {
			return nil
		}
		return &ArityError{Want: f.kind, Got: len(args)}
	}
}

// String renders the kind and whether a callable is present, e.g.
// "unary" or "binary(nil)".
func (f Func) String() string {
	if f.IsNull() && f.kind != KindNull {
		return f.kind.String() + "(nil)"
	}
	return f.kind.String()
}

func argAs[T any](index int, a any) (T, error) {
	var zero T
	if a == nil {
		return zero, nil
	}
	v, ok := a.(T)
	if !ok {
		return zero, &ArgTypeError{Index: index, Want: reflect.TypeFor[T]().String(), Got: fmt.Sprintf("%T", a)}
	}
	return v, nil
}
