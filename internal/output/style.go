package output

// ANSI SGR codes used by the console.
const (
	sgrGrey    = "90"
	sgrRed     = "1;31"
	sgrGreen   = "1;32"
	sgrBlue    = "1;34"
	sgrMagenta = "1;35"
	sgrCyan    = "36"
	sgrCyanB   = "1;36"
	sgrWhite   = "1;37"
)

type palette struct {
	enabled bool
}

func (p palette) paint(code, s string) string {
	if !p.enabled || s == "" {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
