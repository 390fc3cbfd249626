package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/attributes"
	"github.com/automation-stack/ctrace/internal/grammar"
)

// Expression is a compiled boolean display expression such as
// `elapsed > 0.01 || name == "open"`.
type Expression struct {
	source  string
	program *vm.Program
	logger  *zap.Logger
	warn    sync.Once
}

// CompileExpression compiles source against the event environment. An empty
// source yields a nil expression, which matches everything.
func CompileExpression(source string, logger *zap.Logger) (*Expression, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source, expr.Env(attributes.EventSchema()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}

	return &Expression{
		source:  source,
		program: program,
		logger:  logger,
	}, nil
}

// String returns the expression source.
func (e *Expression) String() string {
	return e.source
}

// Match evaluates the expression for ev. Runtime errors match, so a broken
// expression never hides a call; the first error is logged.
func (e *Expression) Match(ev *grammar.Event) bool {
	output, err := expr.Run(e.program, attributes.EventEnv(ev))
	if err != nil {
		e.warn.Do(func() {
			e.logger.Warn("filter expression failed, showing events unfiltered",
				zap.String("expression", e.source),
				zap.String("syscall", ev.Name),
				zap.Error(err))
		})
		return true
	}

	matched, ok := output.(bool)
	return !ok || matched
}
