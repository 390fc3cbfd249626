package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automation-stack/ctrace/internal/aggregate"
	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/procmeta"
	"github.com/automation-stack/ctrace/internal/syscalls"
)

func elapsed(v float64) *float64 { return &v }

func readEvent() *grammar.Event {
	return &grammar.Event{
		Timestamp: "14:00:00.000100",
		Name:      "read",
		Descriptor: &syscalls.Descriptor{
			Name:        "read",
			Synonym:     "read",
			Number:      0,
			Description: "read from a file descriptor",
			Platform:    syscalls.Linux,
		},
		Arguments: `3, "abc", 3`,
		ExitCode:  "3",
		Elapsed:   elapsed(0.000015),
		Kind:      grammar.Completed,
	}
}

func TestConsole_HandleSyscall(t *testing.T) {
	tests := []struct {
		name  string
		event *grammar.Event
		want  string
	}{
		{
			name:  "resolved call",
			event: readEvent(),
			want: "[14:00:00.000100] read (read), 0 -- read from a file descriptor\n" +
				"\t3, \"abc\", 3 = 3 <0.000015>\n",
		},
		{
			name: "unresolved call from a child",
			event: &grammar.Event{
				ForkTag:   "[pid:42]",
				Name:      "frobnicate",
				Arguments: "1",
				ExitCode:  "0",
			},
			want: "[pid:42] frobnicate, NULL -- undocumented\n\t1 = 0\n",
		},
		{
			name: "failed call",
			event: &grammar.Event{
				Name:        "open",
				Descriptor:  &syscalls.Descriptor{Name: "open", Synonym: "open", Number: 2, Description: "open a file"},
				Arguments:   `"/nope", O_RDONLY`,
				ExitCode:    "-1",
				ReturnValue: "ENOENT (No such file or directory)",
				ErrorCode:   "ENOENT (No such file or directory)",
				Failed:      true,
			},
			want: "open (open), 2 -- open a file\n\t\"/nope\", O_RDONLY = -1 ENOENT (No such file or directory)\n",
		},
		{
			name: "unfinished half",
			event: &grammar.Event{
				Name:      "wait4",
				Arguments: "-1, ",
				Kind:      grammar.Unfinished,
			},
			want: "wait4, NULL -- undocumented\n\t-1, \n",
		},
		{
			name: "platform exclusive",
			event: &grammar.Event{
				Name: "csops",
				Descriptor: &syscalls.Descriptor{
					Name: "csops", Synonym: "csops", Number: 169, Description: "code signing",
					PlatformExclusive: true, Platform: syscalls.Darwin,
				},
				ExitCode:    "0",
				ReturnValue: "0",
			},
			want: "csops (csops), 169 -- code signing darwin\n\t = 0 0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := NewConsole(&buf, false)

			require.NoError(t, c.HandleSyscall(tt.event))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestConsole_Colors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	require.NoError(t, c.HandleSyscall(readEvent()))
	assert.Contains(t, buf.String(), "\x1b[1;35mread (read)\x1b[0m")

	buf.Reset()
	require.NoError(t, c.HandlePassthrough("+++ exited with 0 +++"))
	assert.Equal(t, "\x1b[90m+++ exited with 0 +++\x1b[0m\n", buf.String())
}

func TestConsole_HandlePassthrough(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	require.NoError(t, c.HandlePassthrough("--- SIGCHLD ---"))
	assert.Equal(t, "--- SIGCHLD ---\n", buf.String())
}

func TestConsole_HandleStdoutChunk(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	require.NoError(t, c.HandleStdoutChunk([]byte("hello\n")))
	require.NoError(t, c.HandleStdoutChunk([]byte("world")))

	want := "---- ^ stdout chunk{1} ----\nhello\n---- $ stdout chunk{1} ----\n" +
		"---- ^ stdout chunk{2} ----\nworld\n---- $ stdout chunk{2} ----\n"
	assert.Equal(t, want, buf.String())
}

func TestConsole_TraceOnAndNotice(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	require.NoError(t, c.TraceOn(1234, "ls -la"))
	require.NoError(t, c.Notice("received interrupt"))
	assert.Equal(t, "[1234] Trace on: ls -la\nreceived interrupt\n", buf.String())
}

func sampleReport() *aggregate.Report {
	return &aggregate.Report{
		Totals: aggregate.Totals{Elapsed: 0.004, Calls: 5, Errors: 2},
		Rows: []aggregate.Row{
			{
				Name: "open", DisplayName: "open", Percent: 75, Elapsed: 0.003, Calls: 3,
				Description: "open a file",
				Errors:      []aggregate.ErrorCount{{Code: "ENOENT (No such file or directory)", Count: 2}},
			},
			{
				Name: "read", DisplayName: "read", Percent: 25, Elapsed: 0.001, Calls: 2,
				Description: "read from a file descriptor",
			},
		},
	}
}

func TestConsole_HandleReport(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	require.NoError(t, c.HandleReport(sampleReport(), []procmeta.Process{{Calls: 5, Errors: 2}}))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 8)

	rule := strings.Repeat("-", 99)
	assert.Equal(t, rule, lines[0])
	assert.Equal(t, "syscall         time %      second     calls              description", lines[1])
	assert.Equal(t, rule, lines[2])
	assert.Equal(t, "*               100         0.004000   5", lines[3])
	assert.Equal(t, "open            75.0        0.003000   3                  open a file", lines[4])
	assert.Equal(t, "  (2) ENOENT (No such file or directory)", lines[5])
	assert.Equal(t, "read            25.0        0.001000   2                  read from a file descriptor", lines[6])
	assert.Equal(t, rule, lines[7])
}

func TestConsole_HandleReportWithChildren(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	procs := []procmeta.Process{
		{PID: 100, Calls: 3, Errors: 1},
		{Tag: "[pid:101]", PID: 101, Calls: 2, Errors: 1},
	}
	require.NoError(t, c.HandleReport(sampleReport(), procs))

	out := buf.String()
	assert.Contains(t, out, "process         calls       errors\n")
	assert.Contains(t, out, "[pid:100]*      3           1\n")
	assert.Contains(t, out, "[pid:101]       2           1\n")
}
