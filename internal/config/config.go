package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ErrHelp is returned by ParseArgs when usage was requested.
var ErrHelp = errors.New("help requested")

// ErrVersion is returned by ParseArgs when the version was requested.
var ErrVersion = errors.New("version requested")

// CustomAttribute represents a custom span attribute with a name and expression
type CustomAttribute struct {
	Name       string
	Expression string
}

// EnvConfig holds defaults read from the environment
type EnvConfig struct {
	Verbose    bool     `env:"CTRACE_VERBOSE"`
	Filter     []string `env:"CTRACE_FILTER" envSeparator:","`
	DBPath     string   `env:"CTRACE_DB"`
	Platform   string   `env:"CTRACE_PLATFORM"`
	Debug      bool     `env:"CTRACE_DEBUG"`
	NoColor    bool     `env:"CTRACE_NO_COLOR"`
	Attributes string   `env:"CTRACE_ATTRIBUTES"`
}

// Config holds the parsed command-line configuration
type Config struct {
	// Command is the executable to trace, empty when attaching to PID
	Command string
	// Args are the arguments to pass to the command
	Args []string
	// PID is the running process to attach to, 0 when tracing a command
	PID int
	// Filter restricts the live display to these syscall names
	Filter []string
	// Verbose displays successful calls as well as failed ones
	Verbose bool
	// Expression is an optional display predicate over each syscall
	Expression string
	// DBPath is the sqlite database the run is saved to, empty to skip
	DBPath string
	// OTEL forces span export even without an OTLP endpoint in the environment
	OTEL bool
	// NoColor disables ANSI styling
	NoColor bool
	// Platform overrides the detected tracer platform (linux, darwin)
	Platform string
	// Debug enables diagnostic logging
	Debug bool
	// TraceID is an expression for the OpenTelemetry trace ID
	TraceID string
	// ParentID is an expression for the parent span ID
	ParentID string
	// CustomAttributes are the span attributes evaluated for each syscall
	CustomAttributes []CustomAttribute
}

// ParseEnvConfig parses defaults from environment variables
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// Usage returns the help text.
func Usage(programName string) string {
	return fmt.Sprintf(`Usage: %[1]s [options] (-c <cmd> | -p <pid> | -- <command> [args...])

Options:
  -c, --cmd <cmd>          command to trace, split on spaces
  -p, --pid <pid>          process id to trace
  -f, --filter <a,b,...>   display only the listed syscalls
  -v, --verbose            display all syscalls (by default only failed ones)
  -e, --expr <expr>        display only syscalls matching the expression
      --db <path>          save the report to a sqlite database
      --otel               export syscall spans over OTLP/HTTP
  -t, --trace-id <expr>    trace ID expression for exported spans
      --parent-id <expr>   parent span ID expression for exported spans
  -a, --attribute <n=e>    custom span attribute (repeatable)
      --no-color           disable colored output
  -h, --help               show this help
      --version            show version information

Example: %[1]s -v -f open,read -- cat /etc/hosts
`, programName)
}

// ParseArgs parses command-line arguments, starting from the defaults in the
// environment.
func ParseArgs(args []string) (*Config, error) {
	envCfg, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}
	return parseArgs(args, envCfg)
}

func parseArgs(args []string, envCfg *EnvConfig) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	cfg := &Config{
		Verbose:  envCfg.Verbose,
		Filter:   cleanList(envCfg.Filter),
		DBPath:   envCfg.DBPath,
		Platform: envCfg.Platform,
		Debug:    envCfg.Debug,
		NoColor:  envCfg.NoColor,
	}

	envAttrs, err := ParseAttributeString(envCfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("CTRACE_ATTRIBUTES: %w", err)
	}
	cfg.CustomAttributes = envAttrs

	var cmdline string
	var pid string

	i := 1
	for ; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			i++
			break
		}
		if !strings.HasPrefix(arg, "-") {
			break
		}

		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}

		switch arg {
		case "-h", "--help":
			return nil, ErrHelp
		case "--version":
			return nil, ErrVersion
		case "-v", "--verbose":
			cfg.Verbose = true
		case "--otel":
			cfg.OTEL = true
		case "--no-color":
			cfg.NoColor = true
		case "-c", "--cmd":
			if cmdline, err = value(); err != nil {
				return nil, err
			}
		case "-p", "--pid":
			if pid, err = value(); err != nil {
				return nil, err
			}
		case "-f", "--filter":
			v, err := value()
			if err != nil {
				return nil, err
			}
			cfg.Filter = cleanList(strings.Split(v, ","))
		case "-e", "--expr":
			if cfg.Expression, err = value(); err != nil {
				return nil, err
			}
		case "--db":
			if cfg.DBPath, err = value(); err != nil {
				return nil, err
			}
		case "-t", "--trace-id":
			if cfg.TraceID, err = value(); err != nil {
				return nil, err
			}
		case "--parent-id":
			if cfg.ParentID, err = value(); err != nil {
				return nil, err
			}
		case "-a", "--attribute":
			v, err := value()
			if err != nil {
				return nil, err
			}
			attr, err := parseAttribute(v)
			if err != nil {
				return nil, err
			}
			cfg.CustomAttributes = append(cfg.CustomAttributes, attr)
		default:
			return nil, fmt.Errorf("unknown option %q\n\n%s", arg, Usage(args[0]))
		}
	}

	if i < len(args) {
		if cmdline != "" {
			return nil, fmt.Errorf("--cmd and a command after -- are mutually exclusive")
		}
		cfg.Command = args[i]
		cfg.Args = args[i+1:]
	} else if fields := strings.Fields(cmdline); len(fields) > 0 {
		cfg.Command = fields[0]
		cfg.Args = fields[1:]
	}

	if pid != "" {
		if cfg.Command != "" {
			return nil, fmt.Errorf("--pid and a command are mutually exclusive")
		}
		n, err := strconv.Atoi(pid)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid pid %q", pid)
		}
		cfg.PID = n
	}

	if cfg.Command == "" && cfg.PID == 0 {
		return nil, fmt.Errorf("no command specified\n\n%s", Usage(args[0]))
	}

	return cfg, nil
}

// parseAttribute parses a NAME=EXPR attribute definition.
func parseAttribute(def string) (CustomAttribute, error) {
	name, expression, found := strings.Cut(def, "=")
	if !found {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", def)
	}

	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", def)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", def)
	}

	return CustomAttribute{Name: name, Expression: expression}, nil
}

// ParseAttributeString parses semicolon-separated NAME=EXPR definitions.
// Empty sections are ignored.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, section := range strings.Split(s, ";") {
		if strings.TrimSpace(section) == "" {
			continue
		}
		attr, err := parseAttribute(section)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// FullCommand returns the command and all its arguments as a slice
func (c *Config) FullCommand() []string {
	if c.Command == "" {
		return nil
	}
	return append([]string{c.Command}, c.Args...)
}

// Target describes what is being traced.
func (c *Config) Target() string {
	if c.Command == "" {
		return fmt.Sprintf("attach to process %d", c.PID)
	}
	return strings.Join(c.FullCommand(), " ")
}
