package tracer

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/automation-stack/ctrace/internal/syscalls"
)

// ErrNoTarget is returned when neither a command nor a PID is given.
var ErrNoTarget = errors.New("no command or pid to trace")

// Target is what the tracer follows: a command to start or a running PID.
type Target struct {
	Command []string
	PID     int
}

// straceFlags select fd paths (-y), unabbreviated structures (-v), hex
// escapes (-x), child following (-f), microsecond timestamps (-tt) and
// per-call timing (-T).
var straceFlags = []string{"-y", "-v", "-x", "-f", "-tt", "-T"}

// dtrussFlags select elapsed time (-e), child following (-f) and no
// indentation (-L).
var dtrussFlags = []string{"-e", "-f", "-L"}

// Argv builds the tracer command line for platform p.
func Argv(p syscalls.Platform, t Target) ([]string, error) {
	var argv []string
	switch p {
	case syscalls.Linux:
		argv = append([]string{"strace"}, straceFlags...)
	case syscalls.Darwin:
		argv = append([]string{"dtruss"}, dtrussFlags...)
	default:
		return nil, fmt.Errorf("%w: %s", syscalls.ErrUnsupportedPlatform, p)
	}

	switch {
	case len(t.Command) > 0:
		argv = append(argv, t.Command...)
	case t.PID > 0:
		argv = append(argv, "-p", strconv.Itoa(t.PID))
	default:
		return nil, ErrNoTarget
	}

	return argv, nil
}
