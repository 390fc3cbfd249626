// Package tracer runs the platform tracer (strace or dtruss) as a subprocess
// and pumps its output streams.
//
//	                 +---------------------+
//	  argv --------> |  strace / dtruss    |
//	                 +---------------------+
//	                   | stderr       | stdout (traced command)
//	                   v              v
//	        eventstream.Stream   eventstream.Stream
//	                   |              |
//	                   v              v
//	      eventprocessor.Processor   output.Console (chunk banners)
//
// Both pumps run under one errgroup and drain to EOF before the subprocess
// is waited for. SIGINT and SIGTERM only produce a notice: the tracer shares
// the terminal's process group and receives the signal itself.
package tracer
