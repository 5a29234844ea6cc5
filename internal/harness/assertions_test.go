package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/buildhub/internal/protocol"
)

// builtApp runs a scenario that builds one target, runs it and logs once.
func builtApp(t *testing.T) *Result {
	t.Helper()
	scenario := &Scenario{
		Targets: []protocol.BuildTarget{{Builder: "local", Workspace: "ws", Package: "app"}},
		UIDs:    []string{"b-1", "r-1"},
		Steps: []Step{
			{Command: CommandRestart},
			{Respond: &Response{Type: RespondLogItem, UID: "b-1", Kind: "loc_error", Body: "boom", Path: "src/a.rs", Line: 1, Column: 2, Range: []int{0, 4}}},
			{Respond: &Response{Type: RespondCargoEnd, UID: "b-1", Executable: "/bin/app"}},
			{Command: CommandRun},
		},
	}
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestCheck_Passing(t *testing.T) {
	result := builtApp(t)
	scenario := &Scenario{Assertions: []Assertion{
		{Type: AssertSentCount, Payload: "build", Count: 1},
		{Type: AssertSentOrder, Payloads: []string{"build", "new_log_item", "cargo_end", "program_run"}},
		{Type: AssertFinalState, Package: "app", State: "running"},
		{Type: AssertLogContains, Text: "src/a.rs:1:2: error: boom"},
		{Type: AssertLogLen, Count: 1},
		{Type: AssertMarkers, Path: "src/a.rs", Count: 1},
		{Type: AssertMarkers, Path: "src/other.rs", Count: 0},
	}}
	assert.Empty(t, Check(scenario, result))
}

func TestCheck_Failing(t *testing.T) {
	result := builtApp(t)

	tests := []struct {
		name      string
		assertion Assertion
		expected  string
		actual    string
	}{
		{
			name:      "sent_count",
			assertion: Assertion{Type: AssertSentCount, Payload: "program_kill", Count: 1},
			expected:  "program_kill sent 1 time(s)",
			actual:    "sent 0 time(s)",
		},
		{
			name:      "sent_order",
			assertion: Assertion{Type: AssertSentOrder, Payloads: []string{"build", "program_run", "cargo_end"}},
			expected:  "build -> program_run -> cargo_end",
			actual:    "matched up to build -> program_run",
		},
		{
			name:      "final_state",
			assertion: Assertion{Type: AssertFinalState, Package: "app", State: "built"},
			expected:  "app is built",
			actual:    "running",
		},
		{
			name:      "final_state unknown package",
			assertion: Assertion{Type: AssertFinalState, Package: "lib", State: "built"},
			expected:  "lib is built",
			actual:    "no active build for package",
		},
		{
			name:      "log_contains",
			assertion: Assertion{Type: AssertLogContains, Text: "boom"},
			expected:  `log entry "boom"`,
			actual:    "1 entries, none matching",
		},
		{
			name:      "log_len",
			assertion: Assertion{Type: AssertLogLen, Count: 2},
			expected:  "2 log entries",
			actual:    "1 log entries",
		},
		{
			name:      "markers",
			assertion: Assertion{Type: AssertMarkers, Path: "src/a.rs", Count: 2},
			expected:  "2 marker(s) in src/a.rs",
			actual:    "1 marker(s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Check(&Scenario{Assertions: []Assertion{tt.assertion}}, result)
			require.Len(t, errs, 1)

			var ae *AssertionError
			require.True(t, errors.As(errs[0], &ae))
			assert.Equal(t, tt.assertion.Type, ae.Type)
			assert.Equal(t, tt.expected, ae.Expected)
			assert.Equal(t, tt.actual, ae.Actual)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	result := builtApp(t)
	errs := Check(&Scenario{Assertions: []Assertion{{Type: AssertLogLen, Count: 5}}}, result)
	require.Len(t, errs, 1)

	msg := errs[0].Error()
	assert.Contains(t, msg, "Assertion failed: log_len")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "01 step=1 /builder/local build uid=b-1 target=ws/app")
	assert.Contains(t, msg, "program_run uid=r-1 path=/bin/app")
}

func TestCheck_UnknownType(t *testing.T) {
	errs := Check(&Scenario{Assertions: []Assertion{{Type: "nope"}}}, &Result{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `unknown assertion type "nope"`)
}
