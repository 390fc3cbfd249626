// Package aggregate folds parsed syscalls into per-syscall and run-wide
// statistics and turns them into the end-of-run report.
//
// One Aggregator belongs to one trace session. It is fed every parsed event,
// including the ones hidden from the live display, so the report reflects all
// observed calls. Unfinished and resumed halves of one interrupted call are
// recorded as two calls.
package aggregate
