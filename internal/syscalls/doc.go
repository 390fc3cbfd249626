// Package syscalls resolves raw syscall names, as printed by strace or dtruss,
// into descriptors carrying the platform's syscall number and a short description.
//
// The backing tables are embedded YAML documents:
//   - data/syscalls.yaml: one entry per logical call with a record per platform
//   - data/errno_darwin.yaml: errno codes dtruss reports as Err#N
//
// Lookup order (first match wins):
//
//	name ──► exact canonical name
//	     ──► exact after trimming '_' on both ends
//	     ──► canonical name starts/ends with the name (wrapper variants)
//	     ──► name starts/ends with a canonical name at a '_' boundary (e.g. read_nocancel)
//
// Lookups never fail hard: a miss, or any failure while matching, yields "not found"
// and callers report the call as undocumented.
package syscalls
