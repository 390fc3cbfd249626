// Package linereassembler turns the tracer's chunked output stream back into
// complete logical lines.
//
// Chunks arrive at arbitrary byte boundaries, and with -f strace splices the output
// of forked children into the middle of a parent's row. The reassembler handles both:
//
//	┌─────────┐   split on '\n'   ┌──────────┐   repair pass   ┌─────────┐
//	│  chunk  │ ────────────────► │ complete │ ──────────────► │ emitted │
//	└─────────┘   (tail held)     │  lines   │  (may pend)     │  lines  │
//	                              └──────────┘                 └─────────┘
//
// Repair pass: a row fragment (starts like a trace row, does not end with the
// terminator) is glued to the line two positions ahead. The line in between is the
// interleaved output and is emitted right after the glued row.
//
//	i    10:00:00.000001 write(1, "hel          ─┐
//	i+1  [pid  42] 10:00:00.000002 close(3) = 0 <0.000004>
//	i+2  lo", 5) = 5 <0.000010>                 ─┘ glued onto i
//
// Output never depends on how the stream was chunked: a fragment whose
// continuation has not arrived yet stays pending until a later Feed or Flush.
package linereassembler
