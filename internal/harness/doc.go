// Package harness runs scripted scenarios against the build manager.
//
// A scenario feeds a build.Manager a sequence of control commands and
// builder responses, records everything the manager sends, and checks the
// result. No broker, builder or process is involved: the manager is
// driven through Handle on the calling goroutine, so traces are exactly
// reproducible and can be compared against golden files.
//
// # Scenario Format
//
//	name: run_when_done
//	description: "Run is deferred until the last build ends"
//	targets:
//	  - {builder: local, workspace: ws, package: app}
//	uids: [b-1, r-1]
//	steps:
//	  - command: restart
//	  - command: run
//	  - respond: {type: cargo_end, uid: b-1, executable: /work/bin/app}
//	assertions:
//	  - type: sent_count
//	    payload: program_run
//	    count: 1
//	  - type: final_state
//	    package: app
//	    state: running
//
// Commands are restart, run, tail_on, tail_off and log (with text).
// Responses are cargo_begin, log_item, cargo_artifact, build_failure,
// cargo_end and program_end, each tagged with the UID it answers.
//
// # Assertion Types
//
//   - sent_count: a payload type was sent exactly N times
//   - sent_order: payload types were sent in this relative order
//   - final_state: a target ended in the given state
//   - log_contains: the log holds an entry with this rendered text
//   - log_len: the log holds exactly N entries
//   - markers: a buffer holds exactly N diagnostic markers
//
// # Determinism
//
// UIDs come from the scenario's uids list (or a uid-N sequence when it is
// empty), so every run of a scenario produces the same trace.
package harness
