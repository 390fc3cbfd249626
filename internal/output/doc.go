// Package output renders trace results.
//
// Console is the terminal sink. It receives:
//   - displayed syscalls and passthrough lines from the eventprocessor
//   - the traced command's stdout chunks, framed by chunk banners
//   - the final report and per-process summary
//
// OTELFormatter is a pure formatting layer that:
//   - Opens a run span for the trace session
//   - Creates one child span per parsed syscall, grouped under a span per process
//   - Sets report totals on the run span at finalize time
//
// Neither sink parses, filters or aggregates. All data processing is
// delegated to specialized packages:
//   - grammar: line parsing
//   - aggregate: statistics and report
//   - timesync: clock timestamp conversion
//   - attributes: expression evaluation
package output
