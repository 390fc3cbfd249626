package eventprocessor

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/aggregate"
	"github.com/automation-stack/ctrace/internal/filter"
	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/linereassembler"
	"github.com/automation-stack/ctrace/internal/procmeta"
	"github.com/automation-stack/ctrace/internal/syscalls"
)

// DisplayHandler receives the live display stream.
type DisplayHandler interface {
	HandleSyscall(ev *grammar.Event) error
	HandlePassthrough(line string) error
}

// SyscallHandler receives every parsed syscall, displayed or not.
type SyscallHandler interface {
	HandleSyscall(ev *grammar.Event) error
}

// ReportHandler receives the end-of-run report.
type ReportHandler interface {
	HandleReport(report *aggregate.Report, procs []procmeta.Process) error
}

// Processor coordinates reassembly, parsing, aggregation and display.
type Processor struct {
	reassembler     *linereassembler.Reassembler
	parser          grammar.Parser
	resolver        grammar.Resolver
	policy          *filter.Policy
	aggregator      *aggregate.Aggregator
	registry        *procmeta.Registry
	display         DisplayHandler
	syscallHandlers []SyscallHandler
	reportHandlers  []ReportHandler
	logger          *zap.Logger

	finishOnce sync.Once
	report     aggregate.Report
	reported   bool
	finishErr  error
}

// NewProcessor creates a processor for one trace session.
func NewProcessor(
	parser grammar.Parser,
	resolver grammar.Resolver,
	policy *filter.Policy,
	registry *procmeta.Registry,
	display DisplayHandler,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		reassembler: linereassembler.New(reassemblyOptions(parser.Platform())),
		parser:      parser,
		resolver:    resolver,
		policy:      policy,
		aggregator:  aggregate.New(),
		registry:    registry,
		display:     display,
		logger:      logger,
	}
}

func reassemblyOptions(p syscalls.Platform) linereassembler.Options {
	if p == syscalls.Darwin {
		return linereassembler.DtrussOptions()
	}
	return linereassembler.StraceOptions()
}

// AddSyscallHandler registers a handler for every parsed syscall.
func (p *Processor) AddSyscallHandler(h SyscallHandler) {
	p.syscallHandlers = append(p.syscallHandlers, h)
}

// AddReportHandler registers a handler for the final report.
func (p *Processor) AddReportHandler(h ReportHandler) {
	p.reportHandlers = append(p.reportHandlers, h)
}

// Aggregator returns the session's aggregator.
func (p *Processor) Aggregator() *aggregate.Aggregator {
	return p.aggregator
}

// HandleChunk feeds one chunk of tracer output through the pipeline. Handler
// errors are collected and returned; they never stop the remaining lines.
func (p *Processor) HandleChunk(chunk []byte) error {
	var errs []error
	for _, line := range p.reassembler.Feed(chunk) {
		if err := p.HandleLine(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleLine runs one complete logical line through the pipeline.
func (p *Processor) HandleLine(line string) error {
	res := p.parser.Parse(line)

	switch res.Kind {
	case grammar.Passthrough:
		if p.display == nil {
			return nil
		}
		return p.display.HandlePassthrough(res.Line)
	case grammar.Parsed:
		return p.handleSyscall(res.Event)
	default:
		return nil
	}
}

func (p *Processor) handleSyscall(ev *grammar.Event) error {
	p.aggregator.Record(ev)
	p.registry.Observe(ev)

	var errs []error
	for _, h := range p.syscallHandlers {
		if err := h.HandleSyscall(ev); err != nil {
			errs = append(errs, err)
		}
	}

	if p.display != nil && p.policy.ShouldDisplay(ev, p.parser.IsFailure) {
		if err := p.display.HandleSyscall(ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Finish flushes the unterminated tail, builds the report and hands it to the
// report handlers. Only the first call does any work; later calls return the
// same result. The boolean is false when no calls were observed.
func (p *Processor) Finish() (aggregate.Report, bool, error) {
	p.finishOnce.Do(func() {
		var errs []error
		for _, line := range p.reassembler.Flush() {
			if err := p.HandleLine(line); err != nil {
				errs = append(errs, err)
			}
		}

		p.report, p.reported = p.aggregator.Build(p.resolver)
		p.logger.Debug("trace finished",
			zap.Int("calls", p.report.Totals.Calls),
			zap.Int("errors", p.report.Totals.Errors),
			zap.Float64("elapsed", p.report.Totals.Elapsed))

		if p.reported {
			procs := p.registry.Processes()
			for _, h := range p.reportHandlers {
				if err := h.HandleReport(&p.report, procs); err != nil {
					errs = append(errs, fmt.Errorf("report handler: %w", err))
				}
			}
		}

		p.finishErr = errors.Join(errs...)
	})

	return p.report, p.reported, p.finishErr
}
