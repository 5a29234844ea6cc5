package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a trace as golden-file text: a header line naming
// the scenario, then one line per event.
func FormatTrace(name string, trace []TraceEvent) []byte {
	var b strings.Builder
	b.WriteString("scenario: " + name + "\n")
	for _, ev := range trace {
		b.WriteString(ev.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario, fails the test on any assertion
// error, and compares the trace against testdata/golden/{Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("run %s: %v", scenario.Name, err)
	}
	for _, err := range Check(scenario, result) {
		t.Error(err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, FormatTrace(scenario.Name, result.Trace))

	return result
}
