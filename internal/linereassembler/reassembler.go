package linereassembler

import (
	"bytes"
	"regexp"
	"strings"
)

// rowStart matches the beginning of a trace row: a -tt timestamp or a [pid N] tag.
var rowStart = regexp.MustCompile(`^(\d{2}:|\[pid\s+\d+\])`)

// Options tune the repair pass.
type Options struct {
	// Repair enables gluing of interleaved row fragments.
	Repair bool
	// Terminator is the last non-whitespace byte of a well-formed row.
	Terminator byte
	// Complete lists other endings of rows that are whole despite lacking the
	// terminator, such as exit notices and calls that never return.
	Complete []string
}

// StraceOptions suit strace -T output, where every complete row ends in "<elapsed>".
func StraceOptions() Options {
	return Options{
		Repair:     true,
		Terminator: '>',
		Complete:   []string{"+++", "---", "= ?"},
	}
}

// DtrussOptions disable repair: dtruss rows end in digits, never in '>'.
func DtrussOptions() Options {
	return Options{Repair: false}
}

// Reassembler buffers a single output stream and emits complete lines.
// It is not safe for concurrent use; each stream gets its own Reassembler.
type Reassembler struct {
	opts    Options
	tail    []byte
	pending []string
}

// New creates a reassembler with the given options.
func New(opts Options) *Reassembler {
	return &Reassembler{opts: opts}
}

// Feed consumes a chunk and returns the lines it completed.
// A chunk without a newline only extends the carried tail.
func (r *Reassembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	idx := bytes.LastIndexByte(chunk, '\n')
	if idx < 0 {
		r.tail = append(r.tail, chunk...)
		return nil
	}

	data := make([]byte, 0, len(r.tail)+idx)
	data = append(data, r.tail...)
	data = append(data, chunk[:idx]...)

	r.tail = append(r.tail[:0], chunk[idx+1:]...)

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		r.pending = append(r.pending, line)
	}

	return r.drain(false)
}

// Flush returns every line still held back, including an unterminated tail.
// The reassembler is empty afterwards.
func (r *Reassembler) Flush() []string {
	if len(r.tail) > 0 {
		r.pending = append(r.pending, string(r.tail))
		r.tail = r.tail[:0]
	}

	return r.drain(true)
}

// Pending reports how many bytes are buffered and not yet emitted.
func (r *Reassembler) Pending() int {
	n := len(r.tail)
	for _, line := range r.pending {
		n += len(line) + 1
	}
	return n
}

// drain runs the repair pass over pending lines. Unless final is set, it stops at
// the first fragment whose continuation is not buffered yet and keeps the rest.
func (r *Reassembler) drain(final bool) []string {
	lines := r.pending
	out := make([]string, 0, len(lines))

	i := 0
	for i < len(lines) {
		line := lines[i]

		if !r.isFragment(line) {
			out = append(out, line)
			i++
			continue
		}

		if i+2 >= len(lines) {
			if !final {
				break
			}
			out = append(out, line)
			i++
			continue
		}

		// Glue the fragment with its continuation; the interleaved line follows.
		out = append(out, line+lines[i+2], lines[i+1])
		i += 3
	}

	r.pending = append(r.pending[:0:0], lines[i:]...)

	return out
}

func (r *Reassembler) isFragment(line string) bool {
	if !r.opts.Repair {
		return false
	}

	trimmed := strings.TrimRight(line, " \t\r")
	if trimmed == "" || trimmed[len(trimmed)-1] == r.opts.Terminator {
		return false
	}
	for _, suffix := range r.opts.Complete {
		if strings.HasSuffix(trimmed, suffix) {
			return false
		}
	}

	return rowStart.MatchString(trimmed)
}
