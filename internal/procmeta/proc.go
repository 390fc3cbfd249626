package procmeta

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultProcRoot is where Linux exposes per-process information.
const DefaultProcRoot = "/proc"

// FromProc reads the metadata of a running process from procRoot, for
// attaching to a PID. Only procfs platforms provide it.
func FromProc(procRoot string, pid int, platform string) (*ProcessMetadata, error) {
	dir := filepath.Join(procRoot, strconv.Itoa(pid))

	//nolint:gosec // reading procfs is the purpose of this function
	cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil {
		return nil, fmt.Errorf("failed to read cmdline of %d: %w", pid, err)
	}
	//nolint:gosec // reading procfs is the purpose of this function
	environ, err := os.ReadFile(filepath.Join(dir, "environ"))
	if err != nil {
		return nil, fmt.Errorf("failed to read environ of %d: %w", pid, err)
	}

	return Collect(splitNullTerminated(cmdline), splitNullTerminated(environ), platform), nil
}

// splitNullTerminated splits NUL-terminated strings. Parsing stops at the
// first empty string.
func splitNullTerminated(data []byte) []string {
	var out []string
	offset := 0

	for offset < len(data) {
		end := offset
		for end < len(data) && data[end] != 0 {
			end++
		}
		if end == offset {
			break
		}

		out = append(out, string(data[offset:end]))
		offset = end + 1
	}

	return out
}
