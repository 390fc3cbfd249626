package tracer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/automation-stack/ctrace/internal/eventstream"
)

// waitDelay bounds how long pipes may stay open after the tracer is cancelled.
const waitDelay = 2 * time.Second

// Notifier receives the session's out-of-band messages.
type Notifier interface {
	TraceOn(pid int, target string) error
	Notice(msg string) error
}

// Config describes one tracer run.
type Config struct {
	// Argv is the tracer command line, see Argv.
	Argv []string
	// Target is shown in the start banner.
	Target string
	// Trace receives the tracer's stderr, which carries the syscall rows.
	Trace eventstream.ChunkHandler
	// Output receives the traced command's stdout.
	Output   eventstream.ChunkHandler
	Notifier Notifier
	Stdin    io.Reader
	Logger   *zap.Logger
}

// Result summarizes a finished tracer run.
type Result struct {
	PID      int
	ExitCode int
	Signals  []os.Signal
}

// Run starts the tracer and blocks until it exits and both of its output
// streams are drained. Cancelling ctx interrupts the tracer.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if len(cfg.Argv) == 0 {
		return Result{}, ErrNoTarget
	}

	//nolint:gosec // launching the tracer is the purpose of this tool
	cmd := exec.CommandContext(ctx, cfg.Argv[0], cfg.Argv[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = waitDelay
	cmd.Stdin = cfg.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting %s: %w", cfg.Argv[0], err)
	}

	result := Result{PID: cmd.Process.Pid}
	cfg.Logger.Debug("tracer started",
		zap.Int("pid", result.PID),
		zap.String("argv", strings.Join(cfg.Argv, " ")))

	if cfg.Notifier != nil {
		if err := cfg.Notifier.TraceOn(result.PID, cfg.Target); err != nil {
			cfg.Logger.Warn("trace banner", zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	signalsDone := make(chan []os.Signal, 1)
	pumpsDone := make(chan struct{})
	go func() {
		signalsDone <- watchSignals(sigCh, pumpsDone, cfg.Notifier, cfg.Logger)
	}()

	var group errgroup.Group
	group.Go(func() error {
		return pump(ctx, "stderr", stderr, cfg.Trace, cfg.Logger)
	})
	group.Go(func() error {
		return pump(ctx, "stdout", stdout, cfg.Output, cfg.Logger)
	})
	pumpErr := group.Wait()
	close(pumpsDone)
	result.Signals = <-signalsDone

	waitErr := cmd.Wait()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		// strace and dtruss report the traced command's status
		cfg.Logger.Debug("tracer exited", zap.Int("code", result.ExitCode))
		waitErr = nil
	}

	if pumpErr != nil {
		return result, fmt.Errorf("reading tracer output: %w", pumpErr)
	}
	if waitErr != nil {
		return result, fmt.Errorf("waiting for %s: %w", cfg.Argv[0], waitErr)
	}
	return result, nil
}

func pump(ctx context.Context, name string, r io.Reader, h eventstream.ChunkHandler, logger *zap.Logger) error {
	if h == nil {
		h = eventstream.ChunkHandlerFunc(func([]byte) error { return nil })
	}

	err := eventstream.New(name, r, h, logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func watchSignals(sigCh <-chan os.Signal, done <-chan struct{}, notifier Notifier, logger *zap.Logger) []os.Signal {
	var received []os.Signal
	for {
		select {
		case <-done:
			return received
		case sig := <-sigCh:
			received = append(received, sig)
			msg := fmt.Sprintf("Received %s, waiting for the tracer to exit", signalName(sig))
			logger.Debug("signal received", zap.String("signal", sig.String()))
			if notifier != nil {
				if err := notifier.Notice(msg); err != nil {
					logger.Warn("signal notice", zap.Error(err))
				}
			}
		}
	}
}

func signalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
