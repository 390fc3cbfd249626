// Package eventprocessor runs the tracer's diagnostic stream through the
// parsing pipeline and routes the results to handlers.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│      tracer stderr chunks               │
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   linereassembler                       │  ← complete logical lines
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   grammar.Parser                        │  ← Skip / Passthrough / Parsed
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ Passthrough ──→ DisplayHandler.HandlePassthrough
//	          │
//	          └──→ Parsed ───────→ aggregate.Aggregator (always)
//	                               procmeta.Registry (always)
//	                               SyscallHandler (always, e.g. spans)
//	                               filter.Policy ──→ DisplayHandler.HandleSyscall
//
//	Finish ──→ flush tail ──→ aggregate.Build ──→ ReportHandler (once)
//
// The processor is driven by a single stream goroutine; it is not safe for
// concurrent HandleChunk calls.
package eventprocessor
