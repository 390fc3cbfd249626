package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/automation-stack/ctrace/internal/aggregate"
	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/procmeta"
)

const (
	bannerDelimiter = "----"
	ruleWidth       = 99
)

// Console writes the live trace and the final report to a terminal.
// Writes are serialized, so the stdout and stderr pumps can share it.
type Console struct {
	mu           sync.Mutex
	w            io.Writer
	colors       palette
	stdoutChunks int
}

// NewConsole creates a console writing to w. color enables ANSI styling.
func NewConsole(w io.Writer, color bool) *Console {
	return &Console{
		w:      w,
		colors: palette{enabled: color},
	}
}

func (c *Console) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := io.WriteString(c.w, s)
	return err
}

// TraceOn announces the tracer process and its target.
func (c *Console) TraceOn(pid int, target string) error {
	return c.write(fmt.Sprintf("[%d] Trace on: %s\n", pid, c.colors.paint(sgrMagenta, target)))
}

// Notice prints an out-of-band message such as a signal notification.
func (c *Console) Notice(msg string) error {
	return c.write(c.colors.paint(sgrCyanB, msg) + "\n")
}

// HandleSyscall prints one displayed syscall:
//
//	[pid:N] [timestamp] name (synonym), number -- description platform
//		arguments = exit value <elapsed>
func (c *Console) HandleSyscall(ev *grammar.Event) error {
	var b strings.Builder

	if prefix := c.eventPrefix(ev); prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(' ')
	}
	b.WriteString(c.eventTitle(ev))

	b.WriteString("\n\t")
	b.WriteString(c.colors.paint(sgrGrey, ev.Arguments))

	if ev.HasResult() {
		b.WriteString(" ")
		b.WriteString(c.eventResult(ev))
	}
	b.WriteByte('\n')

	return c.write(b.String())
}

func (c *Console) eventPrefix(ev *grammar.Event) string {
	var parts []string
	if ev.ForkTag != "" {
		parts = append(parts, c.colors.paint(sgrBlue, ev.ForkTag))
	}
	if ev.Timestamp != "" {
		parts = append(parts, c.colors.paint(sgrGrey, "["+ev.Timestamp+"]"))
	}
	return strings.Join(parts, " ")
}

func (c *Console) eventTitle(ev *grammar.Event) string {
	name, number, exclusive := ev.Name, "NULL", ""
	if d := ev.Descriptor; d != nil {
		if d.Synonym != "" {
			name += " (" + d.Synonym + ")"
		}
		number = d.NumberString()
		exclusive = d.Exclusivity()
	}

	title := c.colors.paint(sgrMagenta, name) + ", " + c.colors.paint(sgrWhite, number) + " -- " + ev.Description()
	if exclusive != "" {
		title += " " + c.colors.paint(sgrWhite, exclusive)
	}
	return title
}

func (c *Console) eventResult(ev *grammar.Event) string {
	exitColor, valueColor := sgrGreen, sgrBlue
	if ev.Failed {
		exitColor, valueColor = sgrRed, sgrRed
	}

	parts := []string{c.colors.paint(sgrWhite, "="), c.colors.paint(exitColor, ev.ExitCode)}
	if ev.ReturnValue != "" {
		parts = append(parts, c.colors.paint(valueColor, ev.ReturnValue))
	}
	if ev.ErrorCode != "" && ev.ErrorCode != ev.ReturnValue {
		parts = append(parts, c.colors.paint(sgrRed, ev.ErrorCode))
	}
	if ev.Elapsed != nil {
		parts = append(parts, c.colors.paint(sgrCyanB, fmt.Sprintf("<%.6f>", *ev.Elapsed)))
	}
	return strings.Join(parts, " ")
}

// HandlePassthrough prints a tracer line that is not a syscall, dimmed.
func (c *Console) HandlePassthrough(line string) error {
	return c.write(c.colors.paint(sgrGrey, line) + "\n")
}

// HandleStdoutChunk prints one chunk of the traced command's stdout between
// numbered banners.
func (c *Console) HandleStdoutChunk(chunk []byte) error {
	c.mu.Lock()
	c.stdoutChunks++
	n := c.stdoutChunks
	c.mu.Unlock()

	var b strings.Builder
	b.WriteString(c.colors.paint(sgrCyan, fmt.Sprintf("%s ^ stdout chunk{%d} %s", bannerDelimiter, n, bannerDelimiter)))
	b.WriteByte('\n')
	b.Write(chunk)
	if len(chunk) == 0 || chunk[len(chunk)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(c.colors.paint(sgrCyan, fmt.Sprintf("%s $ stdout chunk{%d} %s", bannerDelimiter, n, bannerDelimiter)))
	b.WriteByte('\n')

	return c.write(b.String())
}

// HandleReport prints the report table followed by a per-process summary
// when child processes were traced.
func (c *Console) HandleReport(report *aggregate.Report, procs []procmeta.Process) error {
	var b strings.Builder
	rule := c.colors.paint(sgrWhite, strings.Repeat("-", ruleWidth)) + "\n"

	b.WriteString(rule)
	b.WriteString(c.colors.paint(sgrWhite, fmt.Sprintf("%-16s%-12s%-11s%-19s%s", "syscall", "time %", "second", "calls", "description")))
	b.WriteByte('\n')
	b.WriteString(rule)

	b.WriteString(c.colors.paint(sgrWhite, fmt.Sprintf("%-16s", "*")))
	b.WriteString(fmt.Sprintf("%-12s%-11.6f%d\n", "100", report.Totals.Elapsed, report.Totals.Calls))

	for _, row := range report.Rows {
		b.WriteString(c.colors.paint(sgrWhite, fmt.Sprintf("%-16s", row.DisplayName)))
		b.WriteString(fmt.Sprintf("%-12.1f%-11.6f%-19d%s\n", row.Percent, row.Elapsed, row.Calls, row.Description))
		for _, e := range row.Errors {
			b.WriteString(c.colors.paint(sgrRed, fmt.Sprintf("  (%d) %s", e.Count, e.Code)))
			b.WriteByte('\n')
		}
	}
	b.WriteString(rule)

	if forked(procs) {
		b.WriteString(c.colors.paint(sgrWhite, fmt.Sprintf("%-16s%-12s%s", "process", "calls", "errors")))
		b.WriteByte('\n')
		for _, p := range procs {
			b.WriteString(fmt.Sprintf("%-16s%-12d%d\n", processLabel(p), p.Calls, p.Errors))
		}
		b.WriteString(rule)
	}

	return c.write(b.String())
}

func forked(procs []procmeta.Process) bool {
	for _, p := range procs {
		if p.Tag != "" {
			return true
		}
	}
	return false
}

func processLabel(p procmeta.Process) string {
	if p.Tag != "" {
		return p.Tag
	}
	if p.PID > 0 {
		return fmt.Sprintf("[pid:%d]*", p.PID)
	}
	return "*"
}
