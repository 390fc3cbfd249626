package grammar

import "github.com/automation-stack/ctrace/internal/syscalls"

// Kind distinguishes complete calls from the halves of an interrupted one.
type Kind int

// Event kinds.
const (
	Completed Kind = iota
	Unfinished
	Resumed
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Unfinished:
		return "unfinished"
	case Resumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// Event is one parsed syscall row.
type Event struct {
	Timestamp   string
	ForkTag     string
	Name        string
	Descriptor  *syscalls.Descriptor
	Arguments   string
	ExitCode    string
	ReturnValue string
	ErrorCode   string
	// Elapsed is the time spent in the call in seconds, nil when not reported.
	Elapsed *float64
	Kind    Kind
	Failed  bool
}

// HasResult reports whether the row carried a result section.
func (e *Event) HasResult() bool {
	return e.ExitCode != ""
}

// Description returns the resolved description, or syscalls.Undocumented.
func (e *Event) Description() string {
	if e.Descriptor == nil || e.Descriptor.Description == "" {
		return syscalls.Undocumented
	}
	return e.Descriptor.Description
}
