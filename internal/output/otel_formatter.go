package output

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/aggregate"
	"github.com/automation-stack/ctrace/internal/attributes"
	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/procmeta"
	"github.com/automation-stack/ctrace/internal/syscalls"
	"github.com/automation-stack/ctrace/internal/timesync"
)

// RunInfo describes the trace session that owns the run span.
type RunInfo struct {
	Target   string
	TraceID  trace.TraceID
	ParentID trace.SpanID
	// Attributes are set on the run span as is, e.g. expression warnings.
	Attributes []attribute.KeyValue
}

// HostLookup names the network peers an event refers to.
type HostLookup interface {
	PeerHosts(ev *grammar.Event) []string
}

type processSpan struct {
	span    trace.Span
	ctx     context.Context
	lastEnd time.Time
}

// OTELFormatter exports every parsed syscall as a span.
type OTELFormatter struct {
	mu        sync.Mutex
	tracer    trace.Tracer
	converter *timesync.Converter
	evaluator *attributes.Evaluator
	hosts     HostLookup
	platform  syscalls.Platform
	logger    *zap.Logger

	runCtx    context.Context
	runSpan   trace.Span
	runEnd    time.Time
	procSpans map[string]*processSpan
	procOrder []string

	now func() time.Time
}

// NewOTELFormatter creates a new OTELFormatter. evaluator may be nil when no
// custom attributes are configured.
func NewOTELFormatter(
	tracer trace.Tracer,
	converter *timesync.Converter,
	evaluator *attributes.Evaluator,
	platform syscalls.Platform,
	logger *zap.Logger,
) *OTELFormatter {
	return &OTELFormatter{
		tracer:    tracer,
		converter: converter,
		evaluator: evaluator,
		platform:  platform,
		logger:    logger,
		procSpans: make(map[string]*processSpan),
		now:       time.Now,
	}
}

// SetHostLookup enables peer hostname attributes on syscall spans.
func (f *OTELFormatter) SetHostLookup(h HostLookup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = h
}

// StartRun opens the run span. A valid ParentID attaches it to a remote
// parent in the trace given by TraceID.
func (f *OTELFormatter) StartRun(ctx context.Context, info RunInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if info.TraceID.IsValid() && info.ParentID.IsValid() {
		parent := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    info.TraceID,
			SpanID:     info.ParentID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
	}

	start := f.now()
	attrs := append([]attribute.KeyValue{
		attribute.String("ctrace.target", info.Target),
		attribute.String("ctrace.platform", f.platform.String()),
	}, info.Attributes...)

	f.runCtx, f.runSpan = f.tracer.Start(ctx, "ctrace.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	f.runEnd = start
}

// HandleSyscall records one event as a child of its process span.
func (f *OTELFormatter) HandleSyscall(ev *grammar.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.runSpan == nil {
		return nil
	}

	start := f.startTime(ev)
	end := start
	if ev.Elapsed != nil {
		end = start.Add(time.Duration(*ev.Elapsed * float64(time.Second)))
	}

	parent := f.parentContext(ev.ForkTag, start)
	_, span := f.tracer.Start(parent, ev.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
		trace.WithAttributes(eventAttributes(ev)...),
	)

	if f.evaluator != nil {
		custom, err := f.evaluator.EvaluateCustomAttributes(ev)
		if err != nil {
			f.logger.Warn("custom attributes", zap.String("syscall", ev.Name), zap.Error(err))
		}
		if len(custom) > 0 {
			span.SetAttributes(custom...)
		}
	}

	if f.hosts != nil {
		if peers := f.hosts.PeerHosts(ev); len(peers) > 0 {
			span.SetAttributes(attribute.String("network.pseudo_reverse_dns.peer_host", strings.Join(peers, ",")))
		}
	}

	if ev.Failed {
		span.SetStatus(codes.Error, ev.ErrorCode)
	}
	span.End(trace.WithTimestamp(end))

	if p, ok := f.procSpans[ev.ForkTag]; ok && end.After(p.lastEnd) {
		p.lastEnd = end
	}
	if end.After(f.runEnd) {
		f.runEnd = end
	}
	return nil
}

func (f *OTELFormatter) startTime(ev *grammar.Event) time.Time {
	if ev.Timestamp == "" || f.converter == nil {
		return f.now()
	}
	t, err := f.converter.ClockToWallClock(ev.Timestamp)
	if err != nil {
		f.logger.Debug("unusable timestamp", zap.String("timestamp", ev.Timestamp), zap.Error(err))
		return f.now()
	}
	return t
}

// parentContext returns the run context for the root process and a lazily
// opened process span for forked ones.
func (f *OTELFormatter) parentContext(tag string, start time.Time) context.Context {
	if tag == "" {
		return f.runCtx
	}
	if p, ok := f.procSpans[tag]; ok {
		return p.ctx
	}

	attrs := []attribute.KeyValue{attribute.String("process.fork_tag", tag)}
	if pid, ok := procmeta.ParsePID(tag); ok {
		attrs = append(attrs, attribute.Int("process.pid", pid))
	}
	ctx, span := f.tracer.Start(f.runCtx, "process",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	f.procSpans[tag] = &processSpan{span: span, ctx: ctx, lastEnd: start}
	f.procOrder = append(f.procOrder, tag)
	return ctx
}

func eventAttributes(ev *grammar.Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("syscall.name", ev.Name),
		attribute.String("syscall.kind", ev.Kind.String()),
		attribute.String("syscall.description", ev.Description()),
		attribute.Bool("syscall.failed", ev.Failed),
	}
	if ev.Descriptor != nil {
		attrs = append(attrs,
			attribute.String("syscall.synonym", ev.Descriptor.Synonym),
			attribute.Int("syscall.number", ev.Descriptor.Number),
		)
	}
	if ev.Arguments != "" {
		attrs = append(attrs, attribute.String("syscall.args", ev.Arguments))
	}
	if ev.ExitCode != "" {
		attrs = append(attrs, attribute.String("syscall.exit", ev.ExitCode))
	}
	if ev.ReturnValue != "" {
		attrs = append(attrs, attribute.String("syscall.value", ev.ReturnValue))
	}
	if ev.ErrorCode != "" {
		attrs = append(attrs, attribute.String("syscall.error", ev.ErrorCode))
	}
	if ev.Elapsed != nil {
		attrs = append(attrs, attribute.Float64("syscall.elapsed", *ev.Elapsed))
	}
	if ev.ForkTag != "" {
		attrs = append(attrs, attribute.String("process.fork_tag", ev.ForkTag))
	}
	return attrs
}

// HandleReport sets the totals on the run span and ends all open spans.
func (f *OTELFormatter) HandleReport(report *aggregate.Report, procs []procmeta.Process) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.runSpan == nil {
		return nil
	}

	f.runSpan.SetAttributes(
		attribute.Int("ctrace.calls", report.Totals.Calls),
		attribute.Int("ctrace.errors", report.Totals.Errors),
		attribute.Float64("ctrace.elapsed", report.Totals.Elapsed),
		attribute.Int("ctrace.syscalls", len(report.Rows)),
		attribute.Int("ctrace.processes", len(procs)),
	)

	for _, proc := range procs {
		if p, ok := f.procSpans[proc.Tag]; ok {
			p.span.SetAttributes(
				attribute.Int("process.calls", proc.Calls),
				attribute.Int("process.errors", proc.Errors),
			)
		}
	}

	f.endAll()
	return nil
}

// Close ends the spans that are still open, e.g. when no call was observed.
func (f *OTELFormatter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.runSpan == nil {
		return
	}
	f.endAll()
}

func (f *OTELFormatter) endAll() {
	for _, tag := range f.procOrder {
		p := f.procSpans[tag]
		p.span.End(trace.WithTimestamp(p.lastEnd))
	}
	f.procSpans = make(map[string]*processSpan)
	f.procOrder = nil

	f.runSpan.End(trace.WithTimestamp(f.runEnd))
	f.runSpan = nil
}
