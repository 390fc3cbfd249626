// Package grammar parses complete tracer output lines into syscall events.
//
// There is one grammar per platform, each behind the Parser interface:
//   - strace (Linux, -y -v -x -f -tt -T)
//   - dtruss (macOS, -e -f -L)
//
// A Parser never fails. Every line yields a Result tagged as one of:
//
//	Skip         nothing to show (empty lines, the dtruss column header)
//	Passthrough  not a syscall row; forwarded to the display unmodified
//	Parsed       a syscall Event
//
// Both grammars slice on the literal separators the tracers print (" = ", "(",
// "<...", tabs) rather than tokenizing, because that is what the output format
// actually guarantees.
package grammar
