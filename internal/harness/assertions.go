package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertIndex:
		return assertIDs(a, result.State.Indices[a.Index][a.Key], true, result.Trace)
	case AssertChildren:
		return assertIDs(a, result.State.Children[a.Relation][a.Account], false, result.Trace)
	case AssertUnassigned:
		return assertIDs(a, result.State.Unassigned[a.Relation], true, result.Trace)
	case AssertMirrored:
		return assertIDs(a, result.State.Mirrored[a.Collection], true, result.Trace)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertTraceLast:
		return assertTraceLast(result.Trace, a)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

// assertIDs compares an id list. Unordered lists are compared as sets.
func assertIDs(a Assertion, actual []string, unordered bool, trace []TraceEvent) error {
	want := slices.Clone(a.IDs)
	got := slices.Clone(actual)
	if unordered {
		slices.Sort(want)
		slices.Sort(got)
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: list(want),
		Actual:   list(got),
		Trace:    trace,
	}
}

// assertTraceCount checks how many deliveries a subscription received.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := len(deliveries(trace, a.Label))
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d deliveries to %s", a.Count, a.Label),
		Actual:   fmt.Sprintf("%d deliveries", n),
		Trace:    trace,
	}
}

// assertTraceLast checks the last delivery of a subscription.
func assertTraceLast(trace []TraceEvent, a Assertion) error {
	got := deliveries(trace, a.Label)
	if len(got) > 0 && got[len(got)-1].Value == a.Value {
		return nil
	}
	actual := "no deliveries"
	if len(got) > 0 {
		actual = got[len(got)-1].Value
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: a.Value,
		Actual:   actual,
		Trace:    trace,
	}
}

func deliveries(trace []TraceEvent, label string) []TraceEvent {
	var out []TraceEvent
	for _, e := range trace {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out
}
