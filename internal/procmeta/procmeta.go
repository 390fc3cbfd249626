package procmeta

import "strings"

// ProcessMetadata holds structured process information for expression evaluation.
type ProcessMetadata struct {
	Environ     map[string]string // Parsed environment variables
	Args        []string          // Command-line arguments
	CmdlineFull string            // Full command line as single string
	Platform    string            // Tracer platform
}

// Collect builds the metadata of a traced command from its argv and a raw
// KEY=VALUE environment such as os.Environ().
func Collect(argv, environ []string, platform string) *ProcessMetadata {
	args := append([]string{}, argv...)
	return &ProcessMetadata{
		Environ:     parseEnviron(environ),
		Args:        args,
		CmdlineFull: strings.Join(args, " "),
		Platform:    platform,
	}
}

// parseEnviron parses KEY=VALUE entries. Malformed entries are skipped and the
// last duplicate wins.
func parseEnviron(raw []string) map[string]string {
	env := make(map[string]string, len(raw))
	for _, entry := range raw {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}
