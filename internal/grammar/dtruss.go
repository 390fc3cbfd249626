package grammar

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/automation-stack/ctrace/internal/syscalls"
)

var (
	dtrussCallRow = regexp.MustCompile(`^\s*(\[pid\s+\d+\]\s*)?\d+.+\d+$`)
	dtrussForkTag = regexp.MustCompile(`^\[pid\s+(\d+)\]\s*`)
)

// dtrussHeader is the column header dtruss -e prints before the first row.
const dtrussHeader = "SYSCALL(args)"

// Dtruss parses dtruss -e -f output: `elapsed call(args)\t\t= return errno`.
type Dtruss struct {
	resolver Resolver
	errnos   *syscalls.ErrnoTable
}

// NewDtruss creates the macOS grammar.
func NewDtruss(resolver Resolver, errnos *syscalls.ErrnoTable) *Dtruss {
	return &Dtruss{resolver: resolver, errnos: errnos}
}

// Platform implements Parser.
func (d *Dtruss) Platform() syscalls.Platform {
	return syscalls.Darwin
}

// IsFailure implements Parser.
func (d *Dtruss) IsFailure(ev *Event) bool {
	return NonNumericExit(ev.ExitCode)
}

// Parse implements Parser.
func (d *Dtruss) Parse(line string) Result {
	row := strings.TrimRight(line, " \t\r\n")
	if strings.TrimSpace(row) == "" {
		return skip()
	}

	if !dtrussCallRow.MatchString(row) {
		if strings.Contains(row, dtrussHeader) {
			return skip()
		}
		return passthrough(line)
	}

	fields := splitTabs(row)
	if len(fields) < 2 {
		return passthrough(line)
	}

	result := fields[len(fields)-1]
	eq := strings.IndexByte(result, '=')
	if eq < 0 {
		return passthrough(line)
	}

	head := strings.Join(fields[:len(fields)-1], " ")

	var forkTag string
	if m := dtrussForkTag.FindStringSubmatch(head); m != nil {
		forkTag = "[pid:" + m[1] + "]"
		head = head[len(m[0]):]
	}

	elapsedField, call, found := strings.Cut(strings.TrimSpace(head), " ")
	if !found {
		return passthrough(line)
	}
	call = strings.TrimSpace(call)

	paren := strings.IndexByte(call, '(')
	if paren <= 0 {
		return passthrough(line)
	}

	tokens := strings.Fields(result[eq+1:])
	if len(tokens) < 2 {
		return passthrough(line)
	}

	ev := &Event{
		ForkTag:     forkTag,
		Name:        strings.TrimSpace(call[:paren]),
		Arguments:   call[paren:],
		ReturnValue: tokens[0],
		ExitCode:    tokens[1],
		Elapsed:     parseMicros(elapsedField),
		Kind:        Completed,
	}
	ev.Descriptor = describe(d.resolver, ev.Name)
	ev.Failed = d.IsFailure(ev)

	if ev.Failed {
		ev.ErrorCode = ev.ExitCode
		if errno, ok := d.errnos.LookupTag(ev.ExitCode); ok {
			ev.ErrorCode = errno.String()
		}
	}

	return parsed(ev)
}

func splitTabs(row string) []string {
	var fields []string
	for _, f := range strings.Split(row, "\t") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// parseMicros converts dtruss's integer microsecond column to seconds.
func parseMicros(field string) *float64 {
	us, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		return nil
	}
	v := float64(us) / 1e6
	return &v
}
