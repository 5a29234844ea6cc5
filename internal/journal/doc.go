// Package journal is the SQLite-backed record of build sessions.
//
// A session starts with every restart of the build manager. Within a
// session the journal keeps, in arrival order:
//   - log_items: every console entry the manager kept
//   - artifacts: every artifact a builder reported
//   - results:   the terminal state of every target
//
// # Ordering
//
// Rows are ordered by seq, a per-session logical clock owned by the
// Recorder. Wall-clock columns are informational only.
//
// # Database Configuration
//
//   - WAL mode: the CLI reads history while a build writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: deleting a session cascades
//
// Structured columns (targets, entry) are deterministic CBOR from
// internal/codec. Export writes a session as a zstd-compressed CBOR
// sequence.
package journal
