// Package attributes compiles and evaluates user expressions written in the
// expr language.
//
// Two environments are exposed:
//   - event environment: one parsed syscall (name, elapsed, exit, error, ...),
//     used by the display expression and custom span attributes
//   - run environment: the traced command (env, args, cmdline, platform),
//     used by the trace ID and parent span ID expressions
//
// Evaluators:
//   - Evaluator: custom span attributes per syscall
//   - TraceIDEvaluator: trace ID for the run span (32 hex chars)
//   - ParentIDEvaluator: parent span ID for the run span (16 hex chars)
//
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
