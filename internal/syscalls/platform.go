package syscalls

import (
	"errors"
	"fmt"
	"runtime"
)

// Platform identifies the host flavour whose tracer output and syscall table apply.
type Platform string

// Supported platforms.
const (
	Linux  Platform = "linux"
	Darwin Platform = "darwin"
)

// ErrUnsupportedPlatform is returned for hosts without a supported tracer.
var ErrUnsupportedPlatform = errors.New("current platform not supported")

// ParsePlatform validates a platform name. An empty name selects the host platform.
func ParsePlatform(name string) (Platform, error) {
	if name == "" {
		name = runtime.GOOS
	}

	switch p := Platform(name); p {
	case Linux, Darwin:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, name)
	}
}

func (p Platform) String() string {
	return string(p)
}
