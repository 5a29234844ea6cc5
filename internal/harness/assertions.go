package harness

import (
	"fmt"
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

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", event)
	}

	return buf.String()
}

// Check evaluates every assertion and returns the failures.
func Check(s *Scenario, r *Result) []error {
	var errs []error
	for _, a := range s.Assertions {
		if err := check(a, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func check(a Assertion, r *Result) error {
	switch a.Type {
	case AssertSentCount:
		return assertSentCount(a, r)
	case AssertSentOrder:
		return assertSentOrder(a, r)
	case AssertFinalState:
		return assertFinalState(a, r)
	case AssertLogContains:
		return assertLogContains(a, r)
	case AssertLogLen:
		return assertLogLen(a, r)
	case AssertMarkers:
		return assertMarkers(a, r)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertSentCount(a Assertion, r *Result) error {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type() == a.Payload {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertSentCount,
		Expected: fmt.Sprintf("%s sent %d time(s)", a.Payload, a.Count),
		Actual:   fmt.Sprintf("sent %d time(s)", n),
		Trace:    r.Trace,
	}
}

// assertSentOrder checks that the payload types occur as a subsequence
// of the trace.
func assertSentOrder(a Assertion, r *Result) error {
	next := 0
	for _, ev := range r.Trace {
		if next < len(a.Payloads) && ev.Type() == a.Payloads[next] {
			next++
		}
	}
	if next == len(a.Payloads) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSentOrder,
		Expected: strings.Join(a.Payloads, " -> "),
		Actual:   fmt.Sprintf("matched up to %s", strings.Join(a.Payloads[:next], " -> ")),
		Trace:    r.Trace,
	}
}

func assertFinalState(a Assertion, r *Result) error {
	for _, ab := range r.Builds {
		if ab.Target.Package != a.Package {
			continue
		}
		if got := ab.State().String(); got != a.State {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s is %s", a.Package, a.State),
				Actual:   got,
				Trace:    r.Trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s is %s", a.Package, a.State),
		Actual:   "no active build for package",
		Trace:    r.Trace,
	}
}

func assertLogContains(a Assertion, r *Result) error {
	for _, e := range r.Log {
		if e.String() == a.Text {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("log entry %q", a.Text),
		Actual:   fmt.Sprintf("%d entries, none matching", len(r.Log)),
		Trace:    r.Trace,
	}
}

func assertLogLen(a Assertion, r *Result) error {
	if len(r.Log) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertLogLen,
		Expected: fmt.Sprintf("%d log entries", a.Count),
		Actual:   fmt.Sprintf("%d log entries", len(r.Log)),
		Trace:    r.Trace,
	}
}

func assertMarkers(a Assertion, r *Result) error {
	n := 0
	if buf, ok := r.Buffers.Lookup(a.Path); ok {
		n = buf.Len()
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertMarkers,
		Expected: fmt.Sprintf("%d marker(s) in %s", a.Count, a.Path),
		Actual:   fmt.Sprintf("%d marker(s)", n),
		Trace:    r.Trace,
	}
}
