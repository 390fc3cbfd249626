// ctrace runs strace or dtruss and presents an annotated syscall trace with an
// end-of-run report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/attributes"
	"github.com/automation-stack/ctrace/internal/config"
	"github.com/automation-stack/ctrace/internal/eventprocessor"
	"github.com/automation-stack/ctrace/internal/eventstream"
	"github.com/automation-stack/ctrace/internal/filter"
	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/logutil"
	"github.com/automation-stack/ctrace/internal/otel"
	"github.com/automation-stack/ctrace/internal/output"
	"github.com/automation-stack/ctrace/internal/procmeta"
	"github.com/automation-stack/ctrace/internal/reversedns"
	"github.com/automation-stack/ctrace/internal/store"
	"github.com/automation-stack/ctrace/internal/syscalls"
	"github.com/automation-stack/ctrace/internal/timesync"
	"github.com/automation-stack/ctrace/internal/tracer"
)

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// components holds the wired trace pipeline of one run.
type components struct {
	platform  syscalls.Platform
	resolver  *syscalls.Resolver
	console   *output.Console
	registry  *procmeta.Registry
	processor *eventprocessor.Processor
}

// setupComponents builds the parsing chain and the console sink.
func setupComponents(cfg *config.Config, stdout io.Writer, color bool, logger *zap.Logger) (*components, error) {
	platform, err := syscalls.ParsePlatform(cfg.Platform)
	if err != nil {
		return nil, err
	}

	table, err := syscalls.DefaultTable()
	if err != nil {
		return nil, fmt.Errorf("failed to load syscall table: %w", err)
	}
	resolver, err := syscalls.NewResolver(platform, table, logger)
	if err != nil {
		return nil, err
	}

	var errnos *syscalls.ErrnoTable
	if platform == syscalls.Darwin {
		if errnos, err = syscalls.DarwinErrnos(); err != nil {
			return nil, fmt.Errorf("failed to load errno table: %w", err)
		}
	}

	parser, err := grammar.New(platform, resolver, errnos)
	if err != nil {
		return nil, err
	}

	expression, err := filter.CompileExpression(cfg.Expression, logger)
	if err != nil {
		return nil, err
	}
	policy := filter.NewPolicy(cfg.Filter, cfg.Verbose, expression)

	console := output.NewConsole(stdout, color)
	registry := procmeta.NewRegistry()
	if cfg.PID > 0 {
		registry.SetRoot(cfg.PID)
	}

	processor := eventprocessor.NewProcessor(parser, resolver, policy, registry, console, logger)
	processor.AddReportHandler(console)

	return &components{
		platform:  platform,
		resolver:  resolver,
		console:   console,
		registry:  registry,
		processor: processor,
	}, nil
}

// setupOTEL initializes span export when enabled and registers the formatter
// with the processor. The returned cleanup ends open spans and flushes the
// provider.
func setupOTEL(ctx context.Context, cfg *config.Config, c *components, logger *zap.Logger) (func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.OTEL && !otelCfg.Enabled() {
		return func() {}, nil
	}

	metadata := runMetadata(cfg, c.platform, logger)

	traceEval, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return nil, err
	}
	traceID, traceWarnings, err := traceEval.EvaluateAndValidate(metadata)
	if err != nil {
		return nil, err
	}

	parentEval, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return nil, err
	}
	parentID, parentWarnings, err := parentEval.EvaluateAndValidate(metadata)
	if err != nil {
		return nil, err
	}

	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes, logger)
	if err != nil {
		return nil, err
	}

	tp, err := otel.InitProvider(otelCfg, traceID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	formatter := output.NewOTELFormatter(
		tp.Tracer("ctrace"),
		timesync.NewConverter(time.Now()),
		evaluator,
		c.platform,
		logger,
	)
	formatter.StartRun(ctx, output.RunInfo{
		Target:   cfg.Target(),
		TraceID:  traceID,
		ParentID: parentID,
		Attributes: append(
			[]attribute.KeyValue{attribute.String("ctrace.version", version)},
			append(traceWarnings, parentWarnings...)...,
		),
	})

	hosts := reversedns.New(logger)
	hosts.IngestMetadata(metadata)
	formatter.SetHostLookup(hosts)

	c.processor.AddSyscallHandler(hosts)
	c.processor.AddSyscallHandler(formatter)
	c.processor.AddReportHandler(formatter)

	cleanup := func() {
		formatter.Close()
		hosts.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			logger.Warn("shutting down OTEL provider", zap.Error(err))
		}
	}
	return cleanup, nil
}

// runMetadata describes the traced process for run expressions. An attached
// process is read from procfs when available.
func runMetadata(cfg *config.Config, platform syscalls.Platform, logger *zap.Logger) *procmeta.ProcessMetadata {
	if cfg.PID > 0 {
		md, err := procmeta.FromProc(procmeta.DefaultProcRoot, cfg.PID, platform.String())
		if err == nil {
			return md
		}
		logger.Debug("process metadata unavailable", zap.Int("pid", cfg.PID), zap.Error(err))
	}
	return procmeta.Collect(cfg.FullCommand(), os.Environ(), platform.String())
}

// setupStore opens the run database when configured and registers a recorder.
func setupStore(ctx context.Context, cfg *config.Config, c *components, logger *zap.Logger) (*store.Recorder, func(), error) {
	if cfg.DBPath == "" {
		return nil, func() {}, nil
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	recorder := store.NewRecorder(ctx, st, store.Run{
		Target:   cfg.Target(),
		Platform: c.platform.String(),
	}, logger)
	c.processor.AddReportHandler(recorder)

	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing run database", zap.Error(err))
		}
	}
	return recorder, cleanup, nil
}

func colorEnabled(cfg *config.Config, f *os.File) bool {
	if cfg.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func run() error {
	cfg, err := config.ParseArgs(os.Args)
	switch {
	case errors.Is(err, config.ErrHelp):
		fmt.Print(config.Usage(os.Args[0]))
		return nil
	case errors.Is(err, config.ErrVersion):
		fmt.Printf("ctrace %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	case err != nil:
		return err
	}

	logger, err := logutil.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Debug("starting ctrace",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("target", cfg.Target()))

	color := colorEnabled(cfg, os.Stdout)
	c, err := setupComponents(cfg, colorable.NewColorableStdout(), color, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupOTEL, err := setupOTEL(ctx, cfg, c, logger)
	if err != nil {
		return err
	}
	defer cleanupOTEL()

	recorder, cleanupStore, err := setupStore(ctx, cfg, c, logger)
	if err != nil {
		return err
	}
	defer cleanupStore()

	argv, err := tracer.Argv(c.platform, tracer.Target{Command: cfg.FullCommand(), PID: cfg.PID})
	if err != nil {
		return err
	}

	result, runErr := tracer.Run(ctx, tracer.Config{
		Argv:     argv,
		Target:   cfg.Target(),
		Trace:    c.processor,
		Output:   eventstream.ChunkHandlerFunc(c.console.HandleStdoutChunk),
		Notifier: c.console,
		Stdin:    os.Stdin,
		Logger:   logger,
	})
	logger.Debug("tracer finished", zap.Int("exit_code", result.ExitCode), zap.Int("signals", len(result.Signals)))

	_, reported, err := c.processor.Finish()
	if err != nil {
		logger.Warn("finishing report", zap.Error(err))
	}
	if reported && recorder != nil && recorder.RunID() != "" {
		_ = c.console.Notice("Run saved as " + recorder.RunID())
	}

	return runErr
}
