package syscalls

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/errno_darwin.yaml
var errnoDarwinYAML []byte

// ErrnoTagPrefix marks a failed call in dtruss output, as in "Err#2".
const ErrnoTagPrefix = "Err#"

// Errno describes a numeric error code.
type Errno struct {
	Number int    `yaml:"number"`
	Code   string `yaml:"code"`
	Desc   string `yaml:"desc"`
}

func (e Errno) String() string {
	return e.Code + " : " + e.Desc
}

// ErrnoTable maps numeric error codes to their descriptions.
type ErrnoTable struct {
	byNumber map[int]Errno
}

// LoadErrnoTable parses an errno table document.
func LoadErrnoTable(data []byte) (*ErrnoTable, error) {
	var list []Errno
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse errno table: %w", err)
	}

	t := &ErrnoTable{byNumber: make(map[int]Errno, len(list))}
	for _, e := range list {
		t.byNumber[e.Number] = e
	}

	return t, nil
}

// DarwinErrnos returns the embedded macOS errno table.
func DarwinErrnos() (*ErrnoTable, error) {
	return LoadErrnoTable(errnoDarwinYAML)
}

// Lookup returns the errno registered for number.
func (t *ErrnoTable) Lookup(number int) (Errno, bool) {
	e, ok := t.byNumber[number]
	return e, ok
}

// LookupTag resolves an "Err#N" tag. It reports false when the tag is malformed or unknown.
func (t *ErrnoTable) LookupTag(tag string) (Errno, bool) {
	if !strings.HasPrefix(tag, ErrnoTagPrefix) {
		return Errno{}, false
	}

	n, err := strconv.Atoi(strings.TrimPrefix(tag, ErrnoTagPrefix))
	if err != nil {
		return Errno{}, false
	}

	return t.Lookup(n)
}
