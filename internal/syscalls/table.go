package syscalls

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/syscalls.yaml
var syscallsYAML []byte

// Record is the per-platform half of a table entry.
type Record struct {
	Name   string `yaml:"name"`
	Number int    `yaml:"number"`
	Desc   string `yaml:"desc"`
}

// Entry is one logical syscall with its per-platform records.
type Entry struct {
	Key    string  `yaml:"key"`
	Linux  *Record `yaml:"linux"`
	Darwin *Record `yaml:"darwin"`
}

// For returns the record for the given platform, or nil when the call does not exist there.
func (e *Entry) For(p Platform) *Record {
	switch p {
	case Linux:
		return e.Linux
	case Darwin:
		return e.Darwin
	default:
		return nil
	}
}

// Exclusive reports whether the entry exists for exactly one platform.
func (e *Entry) Exclusive() bool {
	return (e.Linux == nil) != (e.Darwin == nil)
}

// Table is the ordered syscall metadata table.
type Table struct {
	entries []Entry
}

// LoadTable parses a syscall table document.
func LoadTable(data []byte) (*Table, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse syscall table: %w", err)
	}

	return &Table{entries: entries}, nil
}

// DefaultTable returns the embedded syscall table.
func DefaultTable() (*Table, error) {
	return LoadTable(syscallsYAML)
}

// Entries returns the table entries in document order.
func (t *Table) Entries() []Entry {
	return t.entries
}
