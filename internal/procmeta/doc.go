// Package procmeta tracks the processes behind a trace.
//
// ProcessMetadata describes the traced command (environment, arguments, full
// command line) for expression evaluation.
//
// Registry follows the processes seen in the trace, keyed by fork tag, with
// command-query separation:
//
// Queries (read-only):
//   - Get(tag) - Retrieve one process
//   - Processes() - All processes in first-seen order
//
// Commands (mutations):
//   - SetRoot(pid) - Record the traced process
//   - Observe(event) - Count a syscall against its process
//
// Thread-safe with RWMutex for concurrent access.
package procmeta
