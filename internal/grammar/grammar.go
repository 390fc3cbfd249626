package grammar

import (
	"fmt"

	"github.com/automation-stack/ctrace/internal/syscalls"
)

// ResultKind tags the outcome of parsing one line.
type ResultKind int

// Parse outcomes.
const (
	Skip ResultKind = iota
	Passthrough
	Parsed
)

// Result is the outcome of parsing one line. Line is set for Passthrough,
// Event for Parsed.
type Result struct {
	Kind  ResultKind
	Line  string
	Event *Event
}

func skip() Result {
	return Result{Kind: Skip}
}

func passthrough(line string) Result {
	return Result{Kind: Passthrough, Line: line}
}

func parsed(ev *Event) Result {
	return Result{Kind: Parsed, Event: ev}
}

// Parser turns one complete logical line into a Result.
type Parser interface {
	Parse(line string) Result
	// IsFailure is the platform's test for a failed call.
	IsFailure(ev *Event) bool
	Platform() syscalls.Platform
}

// Resolver looks up syscall metadata by name.
type Resolver interface {
	Resolve(name string) (syscalls.Descriptor, bool)
}

// New returns the grammar for platform p.
func New(p syscalls.Platform, resolver Resolver, errnos *syscalls.ErrnoTable) (Parser, error) {
	switch p {
	case syscalls.Linux:
		return NewStrace(resolver), nil
	case syscalls.Darwin:
		if errnos == nil {
			return nil, fmt.Errorf("dtruss grammar requires an errno table")
		}
		return NewDtruss(resolver, errnos), nil
	default:
		return nil, fmt.Errorf("%w: %s", syscalls.ErrUnsupportedPlatform, p)
	}
}

func describe(resolver Resolver, name string) *syscalls.Descriptor {
	if name == "" {
		return nil
	}
	d, ok := resolver.Resolve(name)
	if !ok {
		return nil
	}
	return &d
}
