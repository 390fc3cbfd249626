package grammar

import (
	"regexp"
	"strconv"
	"strings"
)

var leadingIntPattern = regexp.MustCompile(`^[+-]?\d+`)

// leadingInt parses the integer prefix of s, the way strace exit codes such as
// "3</etc/passwd>" or "-1" are read.
func leadingInt(s string) (int64, bool) {
	m := leadingIntPattern.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseSeconds reads an elapsed token such as "<0.000123>".
func parseSeconds(token string) *float64 {
	v, err := strconv.ParseFloat(strings.Trim(token, "<>"), 64)
	if err != nil {
		return nil
	}
	return &v
}

// NegativeExit is the strace failure test: the exit code reads as a negative number.
func NegativeExit(exit string) bool {
	n, ok := leadingInt(exit)
	return ok && n < 0
}

// NonNumericExit is the dtruss failure test: anything other than a
// non-negative number (typically an Err#N tag) is a failure.
func NonNumericExit(exit string) bool {
	n, err := strconv.ParseFloat(strings.TrimSpace(exit), 64)
	return err != nil || n < 0
}
