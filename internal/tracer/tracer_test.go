package tracer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/eventstream"
	"github.com/automation-stack/ctrace/internal/syscalls"
)

func TestArgv(t *testing.T) {
	tests := []struct {
		name     string
		platform syscalls.Platform
		target   Target
		want     []string
		wantErr  error
	}{
		{
			name:     "strace command",
			platform: syscalls.Linux,
			target:   Target{Command: []string{"ls", "-la"}},
			want:     []string{"strace", "-y", "-v", "-x", "-f", "-tt", "-T", "ls", "-la"},
		},
		{
			name:     "strace attach",
			platform: syscalls.Linux,
			target:   Target{PID: 42},
			want:     []string{"strace", "-y", "-v", "-x", "-f", "-tt", "-T", "-p", "42"},
		},
		{
			name:     "dtruss command",
			platform: syscalls.Darwin,
			target:   Target{Command: []string{"ls"}},
			want:     []string{"dtruss", "-e", "-f", "-L", "ls"},
		},
		{
			name:     "dtruss attach",
			platform: syscalls.Darwin,
			target:   Target{PID: 7},
			want:     []string{"dtruss", "-e", "-f", "-L", "-p", "7"},
		},
		{
			name:     "command wins over pid",
			platform: syscalls.Linux,
			target:   Target{Command: []string{"true"}, PID: 3},
			want:     []string{"strace", "-y", "-v", "-x", "-f", "-tt", "-T", "true"},
		},
		{
			name:     "no target",
			platform: syscalls.Linux,
			wantErr:  ErrNoTarget,
		},
		{
			name:     "unsupported platform",
			platform: syscalls.Platform("plan9"),
			target:   Target{PID: 1},
			wantErr:  syscalls.ErrUnsupportedPlatform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Argv(tt.platform, tt.target)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArgvDoesNotShareFlags(t *testing.T) {
	a, err := Argv(syscalls.Linux, Target{Command: []string{"a"}})
	require.NoError(t, err)
	b, err := Argv(syscalls.Linux, Target{Command: []string{"b"}})
	require.NoError(t, err)

	assert.Equal(t, "a", a[len(a)-1])
	assert.Equal(t, "b", b[len(b)-1])
}

type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *collector) HandleChunk(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(chunk)
	return nil
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

type recordingNotifier struct {
	mu      sync.Mutex
	pid     int
	target  string
	notices []string
}

func (n *recordingNotifier) TraceOn(pid int, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pid, n.target = pid, target
	return nil
}

func (n *recordingNotifier) Notice(msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, msg)
	return nil
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestRun_PumpsBothStreams(t *testing.T) {
	sh := requireShell(t)

	var trace, output collector
	notifier := &recordingNotifier{}

	res, err := Run(context.Background(), Config{
		Argv:     []string{sh, "-c", "echo out; echo 'read(3) = 0 <0.1>' >&2; exit 3"},
		Target:   "demo",
		Trace:    &trace,
		Output:   &output,
		Notifier: notifier,
		Logger:   zap.NewNop(),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", output.String())
	assert.Equal(t, "read(3) = 0 <0.1>\n", trace.String())
	assert.Equal(t, res.PID, notifier.pid)
	assert.Equal(t, "demo", notifier.target)
	assert.Empty(t, res.Signals)
}

func TestRun_NilOutputIsDiscarded(t *testing.T) {
	sh := requireShell(t)

	var trace collector
	_, err := Run(context.Background(), Config{
		Argv:   []string{sh, "-c", "echo ignored; echo kept >&2"},
		Trace:  &trace,
		Logger: zap.NewNop(),
	})

	require.NoError(t, err)
	assert.Equal(t, "kept\n", trace.String())
}

func TestRun_MissingExecutable(t *testing.T) {
	_, err := Run(context.Background(), Config{
		Argv:   []string{"/nonexistent/ctrace-tracer"},
		Trace:  eventstream.ChunkHandlerFunc(func([]byte) error { return nil }),
		Logger: zap.NewNop(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting /nonexistent/ctrace-tracer")
}

func TestRun_NoArgv(t *testing.T) {
	_, err := Run(context.Background(), Config{Logger: zap.NewNop()})
	require.ErrorIs(t, err, ErrNoTarget)
}

func TestWatchSignals(t *testing.T) {
	sigCh := make(chan os.Signal, 2)
	done := make(chan struct{})
	notifier := &recordingNotifier{}

	sigCh <- syscall.SIGINT
	sigCh <- syscall.SIGTERM

	result := make(chan []os.Signal, 1)
	go func() { result <- watchSignals(sigCh, done, notifier, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.notices) == 2
	}, testTimeout, testTick)
	close(done)

	assert.Equal(t, []os.Signal{syscall.SIGINT, syscall.SIGTERM}, <-result)
	assert.True(t, strings.HasPrefix(notifier.notices[0], "Received SIGINT"))
	assert.True(t, strings.HasPrefix(notifier.notices[1], "Received SIGTERM"))
}

const (
	testTimeout = 2 * time.Second
	testTick    = 10 * time.Millisecond
)
