package attributes

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/config"
	"github.com/automation-stack/ctrace/internal/grammar"
)

// Evaluator handles compilation and evaluation of custom span attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
	logger        *zap.Logger
}

// NewEvaluator pre-compiles all custom attribute expressions against the event environment.
func NewEvaluator(customAttrs []config.CustomAttribute, logger *zap.Logger) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(EventSchema()))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
		logger:        logger,
	}, nil
}

// EvaluateCustomAttributes evaluates the custom attribute expressions for one syscall.
// Expressions that fail at runtime are logged and skipped.
func (e *Evaluator) EvaluateCustomAttributes(ev *grammar.Event) ([]attribute.KeyValue, error) {
	if len(e.customAttrs) == 0 || ev == nil {
		return nil, nil
	}

	env := EventEnv(ev)

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			e.logger.Warn("failed to evaluate attribute expression",
				zap.String("attribute", customAttr.Name),
				zap.String("syscall", ev.Name),
				zap.Error(err))
			continue
		}

		// Maps expand into one attribute per key with dot notation.
		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() == reflect.Map {
			for _, key := range outputValue.MapKeys() {
				attrName := customAttr.Name + "." + sanitizeAttributeName(fmt.Sprintf("%v", key.Interface()))
				value := outputValue.MapIndex(key).Interface()
				attrs = append(attrs, attribute.String(attrName, fmt.Sprint(value)))
			}
			continue
		}

		attrs = append(attrs, attribute.String(customAttr.Name, fmt.Sprint(output)))
	}

	return attrs, nil
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
