package grammar

import (
	"regexp"
	"strings"

	"github.com/automation-stack/ctrace/internal/syscalls"
)

var (
	straceRegularRow = regexp.MustCompile(`^(\d{2}:|\[).+\d+>$`)
	straceForkTag    = regexp.MustCompile(`^(\[pid\s+\d+\])\s+(.+)$`)
	straceFdPath     = regexp.MustCompile(`^(-?\d+)<(.*)>$`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

const (
	unfinishedMarker = "<unfinished"
	resumedOpen      = "<..."
	resumedWord      = "resumed"
	resultSeparator  = " = "
)

// Strace parses strace -y -v -x -f -tt -T output.
type Strace struct {
	resolver Resolver
}

// NewStrace creates the Linux grammar.
func NewStrace(resolver Resolver) *Strace {
	return &Strace{resolver: resolver}
}

// Platform implements Parser.
func (s *Strace) Platform() syscalls.Platform {
	return syscalls.Linux
}

// IsFailure implements Parser.
func (s *Strace) IsFailure(ev *Event) bool {
	return NegativeExit(ev.ExitCode)
}

// Parse implements Parser.
//
// Shapes, in priority order: irregular/log line, fork-tagged row, unfinished
// call, resumed call, completed call.
func (s *Strace) Parse(line string) Result {
	row := strings.TrimRight(line, " \t\r\n")
	if row == "" {
		return skip()
	}

	unfinished := isUnfinished(row)
	resumed := isResumed(row)

	if !unfinished && !resumed && !straceRegularRow.MatchString(row) && !strings.Contains(row, "(") {
		return passthrough(whitespaceRun.ReplaceAllString(row, " "))
	}

	var forkTag string
	if m := straceForkTag.FindStringSubmatch(row); m != nil {
		forkTag = strings.Join(strings.Fields(m[1]), ":")
		row = m[2]
	}

	if isNotice(row) {
		return passthrough(whitespaceRun.ReplaceAllString(line, " "))
	}

	var (
		ev *Event
		ok bool
	)
	switch {
	case unfinished:
		ev, ok = s.parseUnfinished(row)
	case resumed:
		ev, ok = s.parseResumed(row)
	default:
		ev, ok = s.parseCompleted(row)
	}
	if !ok {
		return passthrough(line)
	}

	ev.ForkTag = forkTag
	ev.Descriptor = describe(s.resolver, ev.Name)
	ev.Failed = s.IsFailure(ev)

	return parsed(ev)
}

// parseUnfinished handles `10:00:00.000001 read(5, <unfinished ...>`. A row
// that resumes one call only to be interrupted again names the call in its
// continuation marker.
func (s *Strace) parseUnfinished(row string) (*Event, bool) {
	timestamp, call := splitTimestamp(row)

	ev := &Event{
		Timestamp: timestamp,
		Kind:      Unfinished,
	}

	if name, rest, ok := resumedName(call); ok {
		ev.Name = name
		ev.Arguments = strings.TrimSpace(rest)
		return ev, true
	}

	paren := strings.IndexByte(call, '(')
	if paren <= 0 {
		return nil, false
	}
	ev.Name = strings.TrimSpace(call[:paren])
	ev.Arguments = strings.TrimSpace(call[paren:])

	return ev, true
}

// parseResumed handles `10:00:00.000200 <... read resumed>) = 10 <0.000199>`.
func (s *Strace) parseResumed(row string) (*Event, bool) {
	timestamp, call := splitTimestamp(row)

	name, args, ok := resumedName(call)
	if !ok {
		return nil, false
	}

	ev := &Event{
		Timestamp: timestamp,
		Name:      name,
		Kind:      Resumed,
	}

	if idx := strings.LastIndex(args, resultSeparator); idx >= 0 {
		parseStraceResult(ev, args[idx+len(resultSeparator):])
		args = args[:idx]
	}
	ev.Arguments = strings.TrimSpace(args)

	return ev, true
}

// resumedName splits `<... read resumed>) = 10` into the call name and
// whatever follows the marker.
func resumedName(call string) (string, string, bool) {
	open := strings.Index(call, resumedOpen)
	if open < 0 {
		return "", "", false
	}
	rest := call[open+len(resumedOpen):]

	word := strings.Index(rest, resumedWord)
	if word < 0 {
		return "", "", false
	}

	name := strings.TrimSpace(rest[:word])
	if name == "" {
		return "", "", false
	}

	return name, strings.TrimPrefix(rest[word+len(resumedWord):], ">"), true
}

// parseCompleted handles `14:32:10.123456 open("/etc/passwd", O_RDONLY) = 3 <0.000123>`.
func (s *Strace) parseCompleted(row string) (*Event, bool) {
	idx := strings.LastIndex(row, resultSeparator)
	if idx < 0 {
		return nil, false
	}

	timestamp, call := splitTimestamp(strings.TrimSpace(row[:idx]))

	paren := strings.IndexByte(call, '(')
	if paren <= 0 {
		return nil, false
	}

	ev := &Event{
		Timestamp: timestamp,
		Name:      strings.TrimSpace(call[:paren]),
		Arguments: strings.TrimSpace(call[paren:]),
		Kind:      Completed,
	}
	parseStraceResult(ev, row[idx+len(resultSeparator):])

	return ev, true
}

// parseStraceResult fills the result fields from the text after " = ",
// e.g. `-1 ENOENT (No such file or directory) <0.000050>`.
func parseStraceResult(ev *Event, result string) {
	result = strings.TrimSpace(result)
	tokens := strings.Fields(result)
	if len(tokens) == 0 {
		return
	}

	exit := tokens[0]
	middle := strings.TrimSpace(result[len(exit):])

	if len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if strings.HasPrefix(last, "<") && strings.HasSuffix(last, ">") {
			ev.Elapsed = parseSeconds(last)
			middle = strings.TrimSpace(strings.TrimSuffix(middle, last))
		}
	}

	ev.ExitCode = exit
	if m := straceFdPath.FindStringSubmatch(exit); m != nil {
		ev.ExitCode = m[1]
		if middle == "" {
			middle = m[2]
		}
	}
	ev.ReturnValue = strings.Trim(middle, "<>")

	if NegativeExit(ev.ExitCode) {
		code := result[len(exit):]
		if i := strings.IndexByte(code, '<'); i >= 0 {
			code = code[:i]
		}
		ev.ErrorCode = strings.TrimSpace(code)
	}
}

// isUnfinished reports a row ending in an unfinished marker. A marker followed
// by a result belongs to a string argument of a completed call.
func isUnfinished(row string) bool {
	i := strings.LastIndex(row, unfinishedMarker)
	return i >= 0 && !strings.Contains(row[i:], resultSeparator)
}

// isResumed reports a row whose call opens with `<... name resumed>`. The
// marker has to precede the first parenthesis, otherwise it is argument text.
func isResumed(row string) bool {
	open := strings.Index(row, resumedOpen)
	if open < 0 {
		return false
	}
	if paren := strings.IndexByte(row, '('); paren >= 0 && paren < open {
		return false
	}
	return strings.Contains(row[open:], resumedWord)
}

// splitTimestamp separates a leading -tt timestamp from the call text. Rows
// printed without timestamps come back with an empty timestamp.
func splitTimestamp(row string) (string, string) {
	first := strings.IndexByte(row, ' ')
	paren := strings.IndexByte(row, '(')
	if first < 0 || (paren >= 0 && first > paren) || strings.HasPrefix(row, resumedOpen) {
		return "", row
	}
	return strings.TrimSpace(row[:first]), strings.TrimSpace(row[first+1:])
}

// isNotice reports exit and signal notices such as "+++ exited with 0 +++".
func isNotice(row string) bool {
	body := strings.TrimSpace(row)
	if f := strings.Fields(row); len(f) > 1 && strings.Contains(f[0], ":") {
		body = strings.TrimSpace(body[len(f[0]):])
	}
	return strings.HasPrefix(body, "+++") || strings.HasPrefix(body, "---")
}
