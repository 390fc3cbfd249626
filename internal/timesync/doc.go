// Package timesync converts tracer timestamps to wall-clock time.
//
// strace -tt prints the time of day only ("14:32:10.123456"). The converter
// anchors those clock readings to the calendar day the trace started on and
// rolls over to the next day when the clock wraps past midnight.
//
// dtruss rows carry no timestamp; callers fall back to the reception time.
package timesync
