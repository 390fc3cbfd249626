package filter

import (
	"strings"

	"github.com/automation-stack/ctrace/internal/grammar"
)

// FailureTest reports whether an event represents a failed call.
type FailureTest func(ev *grammar.Event) bool

// Policy is the display policy for one trace session.
type Policy struct {
	allow      map[string]struct{}
	verbose    bool
	expression *Expression
}

// NewPolicy builds a policy. An empty allow list admits every syscall and a nil
// expression admits every event.
func NewPolicy(allow []string, verbose bool, expression *Expression) *Policy {
	p := &Policy{
		verbose:    verbose,
		expression: expression,
	}

	for _, name := range allow {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if p.allow == nil {
			p.allow = make(map[string]struct{})
		}
		p.allow[name] = struct{}{}
	}

	return p
}

// Allowed reports whether name passes the allow list.
func (p *Policy) Allowed(name string) bool {
	if len(p.allow) == 0 {
		return true
	}
	_, ok := p.allow[name]
	return ok
}

// Verbose reports whether successful calls are shown.
func (p *Policy) Verbose() bool {
	return p.verbose
}

// ShouldDisplay reports whether ev is eligible for live display. Errors are
// always shown, successes only in verbose mode.
func (p *Policy) ShouldDisplay(ev *grammar.Event, failed FailureTest) bool {
	if ev == nil || !p.Allowed(ev.Name) {
		return false
	}

	if p.expression != nil && !p.expression.Match(ev) {
		return false
	}

	if p.verbose {
		return true
	}

	return failed(ev)
}
