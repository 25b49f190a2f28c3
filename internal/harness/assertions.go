package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/thinker/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Events   []ir.Event // Event log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nEvent log:\n")
		for _, ev := range e.Events {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}

	return buf.String()
}

// assertVisitOrder checks that exactly the listed thinkers were visited in
// the tick, in that order.
func assertVisitOrder(result *Result, a Assertion) error {
	got := result.Visits(uint64(a.Tick))
	want := a.Thinkers
	if len(got) == 0 && len(want) == 0 {
		return nil
	}
	if slices.Equal(got, want) {
		return nil
	}

	return &AssertionError{
		Type:     AssertVisitOrder,
		Expected: fmt.Sprintf("tick %d visits %v", a.Tick, want),
		Actual:   fmt.Sprintf("tick %d visited %v", a.Tick, got),
		Events:   result.Events,
	}
}

// assertVisited checks whether the thinker was visited in the tick.
func assertVisited(result *Result, a Assertion, want bool) error {
	got := slices.Contains(result.Visits(uint64(a.Tick)), a.Thinker)
	if got == want {
		return nil
	}

	kind, expected, actual := AssertVisited, "visited", "not visited"
	if !want {
		kind, expected, actual = AssertNotVisited, "not visited", "visited"
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%s %s in tick %d", a.Thinker, expected, a.Tick),
		Actual:   actual,
		Events:   result.Events,
	}
}

// assertVisitCount checks how often the thinker was visited over the run.
func assertVisitCount(result *Result, a Assertion) error {
	count := result.VisitCount(a.Thinker)
	if count == a.Count {
		return nil
	}

	return &AssertionError{
		Type:     AssertVisitCount,
		Expected: fmt.Sprintf("%d visits of %s", a.Count, a.Thinker),
		Actual:   fmt.Sprintf("%d visits", count),
		Events:   result.Events,
	}
}

// assertAlive checks the scheduled thinkers after the last tick.
func assertAlive(result *Result, a Assertion) error {
	if len(result.Alive) == 0 && len(a.Thinkers) == 0 {
		return nil
	}
	if slices.Equal(result.Alive, a.Thinkers) {
		return nil
	}

	return &AssertionError{
		Type:     AssertAlive,
		Expected: fmt.Sprintf("alive %v", a.Thinkers),
		Actual:   fmt.Sprintf("alive %v", result.Alive),
	}
}

// matchesTickError reports whether the tick error satisfies an error
// assertion.
func matchesTickError(te TickError, a Assertion) bool {
	return te.Code == a.Code && (a.Tick == 0 || te.Tick == uint64(a.Tick))
}

// assertError checks that some tick failed with the expected code.
func assertError(result *Result, a Assertion) error {
	for _, te := range result.TickErrors {
		if matchesTickError(te, a) {
			return nil
		}
	}

	where := "any tick"
	if a.Tick != 0 {
		where = fmt.Sprintf("tick %d", a.Tick)
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: fmt.Sprintf("%s in %s", a.Code, where),
		Actual:   fmt.Sprintf("tick errors %v", tickErrorCodes(result.TickErrors)),
	}
}

// unexpectedErrors returns a message for every tick error that no error
// assertion accounts for.
func unexpectedErrors(result *Result, assertions []Assertion) []string {
	var msgs []string
	for _, te := range result.TickErrors {
		expected := slices.ContainsFunc(assertions, func(a Assertion) bool {
			return a.Type == AssertError && matchesTickError(te, a)
		})
		if !expected {
			msgs = append(msgs, fmt.Sprintf("unexpected error in tick %d: %s", te.Tick, te.Message))
		}
	}
	return msgs
}

func tickErrorCodes(errs []TickError) []string {
	codes := make([]string, len(errs))
	for i, te := range errs {
		codes[i] = fmt.Sprintf("%s@%d", te.Code, te.Tick)
	}
	return codes
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions, followed by one
// message per unexpected tick error.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertVisitOrder:
			err = assertVisitOrder(result, a)
		case AssertVisited:
			err = assertVisited(result, a, true)
		case AssertNotVisited:
			err = assertVisited(result, a, false)
		case AssertVisitCount:
			err = assertVisitCount(result, a)
		case AssertAlive:
			err = assertAlive(result, a)
		case AssertError:
			err = assertError(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return append(errors, unexpectedErrors(result, assertions)...)
}
