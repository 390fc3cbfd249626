package attributes

import (
	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/procmeta"
	"github.com/automation-stack/ctrace/internal/syscalls"
)

// EventSchema is the type-checking environment for event expressions.
func EventSchema() map[string]interface{} {
	return map[string]interface{}{
		"name":        "",
		"synonym":     "",
		"number":      0,
		"description": "",
		"timestamp":   "",
		"fork":        "",
		"args":        "",
		"exit":        "",
		"value":       "",
		"error":       "",
		"elapsed":     0.0,
		"timed":       false,
		"failed":      false,
		"kind":        "",
	}
}

// EventEnv builds the evaluation environment for one parsed syscall. Absent
// timings read as zero with timed set to false.
func EventEnv(ev *grammar.Event) map[string]interface{} {
	env := map[string]interface{}{
		"name":        ev.Name,
		"synonym":     "",
		"number":      syscalls.UnknownNumber,
		"description": ev.Description(),
		"timestamp":   ev.Timestamp,
		"fork":        ev.ForkTag,
		"args":        ev.Arguments,
		"exit":        ev.ExitCode,
		"value":       ev.ReturnValue,
		"error":       ev.ErrorCode,
		"elapsed":     0.0,
		"timed":       ev.Elapsed != nil,
		"failed":      ev.Failed,
		"kind":        ev.Kind.String(),
	}

	if ev.Descriptor != nil {
		env["synonym"] = ev.Descriptor.Synonym
		env["number"] = ev.Descriptor.Number
	}
	if ev.Elapsed != nil {
		env["elapsed"] = *ev.Elapsed
	}

	return env
}

func runSchema() map[string]interface{} {
	return map[string]interface{}{
		"env":      map[string]string{},
		"args":     []string{},
		"cmdline":  "",
		"platform": "",
	}
}

func runEnv(metadata *procmeta.ProcessMetadata) map[string]interface{} {
	return map[string]interface{}{
		"env":      metadata.Environ,
		"args":     metadata.Args,
		"cmdline":  metadata.CmdlineFull,
		"platform": metadata.Platform,
	}
}
